package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays persistent profile and runtime status.
type StatusBar struct {
	*tview.TextView
	profile string
	tier    string
	channel string
	search  string
	offline int
}

// NewStatusBar creates the status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetTier updates the activity tier display.
func (sb *StatusBar) SetTier(tier string) {
	sb.tier = tier
	sb.render()
}

// SetFilters updates the channel/search display.
func (sb *StatusBar) SetFilters(channel, search string) {
	sb.channel = channel
	sb.search = search
	sb.render()
}

// SetOfflineCount updates the offline-lines counter.
func (sb *StatusBar) SetOfflineCount(n int) {
	sb.offline = n
	sb.render()
}

// Refresh re-renders the bar, picking up the wall clock.
func (sb *StatusBar) Refresh() {
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s", sb.profile, sb.tier)
	if sb.channel != "" {
		line += " | @" + sb.channel
	}
	if sb.search != "" {
		line += " | /" + sb.search
	}
	if sb.offline > 0 {
		line += fmt.Sprintf(" | [orangered]%d line(s) offline[-]", sb.offline)
	}
	line += " | " + time.Now().Format("15:04")

	_, _ = fmt.Fprint(sb, line)
}
