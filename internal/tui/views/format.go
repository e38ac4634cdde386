package views

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/safegreen/waconsole/internal/httpapi"
)

// SummaryLine renders a history sync result for the toast line.
func SummaryLine(stats httpapi.HistoryStats) string {
	return fmt.Sprintf("Synced %d messages across %d chats",
		stats.MessagesForwarded, stats.ChatsWithMessages)
}

// formatClock renders a millisecond timestamp as HH:MM for today and
// MM/DD otherwise.
func formatClock(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

// sanitizeForTerminal strips Unicode codepoints that break cell-width
// accounting in tcell: skin tone modifiers, zero width joiners and
// variation selectors. A multi-codepoint emoji degrades to its base
// character, which renders at a predictable width.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !widthHostile(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func widthHostile(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tone modifiers
		return true
	case r == 0x200D: // zero width joiner
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r >= 0xE0100 && r <= 0xE01EF: // variation selectors supplement
		return true
	default:
		return false
	}
}
