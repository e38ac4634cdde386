package views

import (
	"fmt"
	"sort"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/rivo/tview"
	"github.com/safegreen/waconsole/internal/gateway"
	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/tui/ui"
)

// lineCard is the rendered state of one gateway instance.
type lineCard struct {
	info       httpapi.GatewayInfo
	normalized string
	importLine string
	summary    *gateway.ImportSummary
	qr         string
	qrExpires  int64
}

// GatewayView shows one card per configured line: status, metrics, import
// progress and, while pairing, the QR code.
type GatewayView struct {
	*tview.TextView
	theme    *ui.Theme
	order    []string
	cards    map[string]*lineCard
	selected int
}

// NewGatewayView creates the gateway pane for the given instance names.
func NewGatewayView(theme *ui.Theme, instances []string) *GatewayView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true).SetTitle(" Lines ")
	tv.SetBorderColor(theme.BorderColor)
	tv.SetTitleColor(theme.TitleColor)
	tv.SetBackgroundColor(theme.BgColor)

	order := append([]string{}, instances...)
	sort.Strings(order)
	cards := make(map[string]*lineCard, len(order))
	for _, name := range order {
		cards[name] = &lineCard{normalized: "offline"}
	}

	gv := &GatewayView{
		TextView: tv,
		theme:    theme,
		order:    order,
		cards:    cards,
	}
	gv.render()
	return gv
}

// Selected returns the instance the card cursor is on.
func (gv *GatewayView) Selected() string {
	if len(gv.order) == 0 {
		return ""
	}
	return gv.order[gv.selected]
}

// Select moves the cursor to the nth instance (0-based).
func (gv *GatewayView) Select(n int) {
	if n >= 0 && n < len(gv.order) {
		gv.selected = n
		gv.render()
	}
}

// SetStatus updates one card's classified status and raw info.
func (gv *GatewayView) SetStatus(instance, normalized string, info httpapi.GatewayInfo) {
	if card, ok := gv.cards[instance]; ok {
		card.normalized = normalized
		card.info = info
		gv.render()
	}
}

// SetImport updates one card's import progress line and summary.
func (gv *GatewayView) SetImport(instance, line string, summary *gateway.ImportSummary) {
	if card, ok := gv.cards[instance]; ok {
		card.importLine = line
		card.summary = summary
		gv.render()
	}
}

// ShowQR attaches a pairing code to one card.
func (gv *GatewayView) ShowQR(instance, content string, expiresAt int64) {
	if card, ok := gv.cards[instance]; ok {
		card.qr = content
		card.qrExpires = expiresAt
		gv.render()
	}
}

// HideQR removes the pairing code from one card.
func (gv *GatewayView) HideQR(instance string) {
	if card, ok := gv.cards[instance]; ok {
		card.qr = ""
		card.qrExpires = 0
		gv.render()
	}
}

func (gv *GatewayView) render() {
	gv.Clear()

	for i, name := range gv.order {
		card := gv.cards[name]
		cursor := "  "
		if i == gv.selected {
			cursor = "> "
		}

		statusColor := colorFor(gv.theme, card.normalized)
		_, _ = fmt.Fprintf(gv, "\n%s[::b]%s[-:-:-]  [%s]%s[-]\n", cursor, name, statusColor, card.normalized)

		if card.info.Metrics.LastError != "" {
			_, _ = fmt.Fprintf(gv, "    last error: %s\n", tview.Escape(card.info.Metrics.LastError))
		}
		if card.info.Metrics.LastIncomingAt > 0 {
			_, _ = fmt.Fprintf(gv, "    last incoming: %s\n", formatClock(card.info.Metrics.LastIncomingAt))
		}
		if card.importLine != "" {
			_, _ = fmt.Fprintf(gv, "    %s\n", card.importLine)
		}
		if s := card.summary; s != nil {
			if s.Failed {
				_, _ = fmt.Fprint(gv, "    [orangered]import failed[-]\n")
			} else {
				_, _ = fmt.Fprintf(gv, "    imported %d messages across %d chats\n",
					s.Stats.MessagesForwarded, s.Stats.ChatsWithMessages)
			}
		}
		if card.qr != "" {
			_, _ = fmt.Fprintf(gv, "\n    Scan with the phone to pair:\n\n%s", renderQR(card.qr))
			if card.qrExpires > 0 {
				_, _ = fmt.Fprintf(gv, "    [::d]expires %s[-:-:-]\n",
					time.UnixMilli(card.qrExpires).Format("15:04:05"))
			}
		}
	}
}

func colorFor(theme *ui.Theme, normalized string) string {
	switch normalized {
	case "online":
		return fmt.Sprintf("#%06x", theme.OnlineColor.Hex())
	case "awaiting-pairing":
		return fmt.Sprintf("#%06x", theme.AwaitingColor.Hex())
	default:
		return fmt.Sprintf("#%06x", theme.OfflineColor.Hex())
	}
}

// renderQR converts pairing content to a compact scannable block using
// Unicode half-block characters, two QR rows per terminal row.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "    (QR generation failed: " + err.Error() + ")\n"
	}

	grid := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(grid); y += 2 {
		sb.WriteString("    ")
		for x := 0; x < len(grid[y]); x++ {
			upper := grid[y][x]
			lower := y+1 < len(grid) && grid[y+1][x]
			switch {
			case upper && lower:
				sb.WriteRune('█')
			case upper:
				sb.WriteRune('▀')
			case lower:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
