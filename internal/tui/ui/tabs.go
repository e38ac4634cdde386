package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Tabs is the panel tab bar. Each tab shows a panel key and its unread
// count; the active tab is highlighted.
type Tabs struct {
	*tview.TextView
	theme *Theme
}

// NewTabs creates the tab bar.
func NewTabs(theme *Theme) *Tabs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Tabs{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the tab row. keys must already be in display order.
func (t *Tabs) Update(keys []string, active string, unread map[string]int) {
	t.Clear()
	if len(keys) == 0 {
		return
	}

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		label := key
		if n := unread[key]; n > 0 {
			label = fmt.Sprintf("%s (%d)", key, n)
		}
		if key == active {
			parts = append(parts, fmt.Sprintf("[%s:%s:b] %s [-:-:-]",
				colorName(t.theme.TabActiveFg), colorName(t.theme.TabActiveBg), label))
		} else {
			parts = append(parts, fmt.Sprintf("[%s:%s:] %s [-:-:-]",
				colorName(t.theme.TabInactiveFg), colorName(t.theme.TabInactiveBg), label))
		}
	}
	_, _ = fmt.Fprint(t, strings.Join(parts, " "))
}
