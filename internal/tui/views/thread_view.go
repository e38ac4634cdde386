package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/safegreen/waconsole/internal/cache"
	"github.com/safegreen/waconsole/internal/tui/ui"
)

// ThreadView renders the open conversation.
type ThreadView struct {
	*tview.TextView
	theme    *ui.Theme
	messages []cache.Message
	contact  string
	phone    string
	atStart  bool
}

// NewThreadView creates the conversation pane.
func NewThreadView(theme *ui.Theme) *ThreadView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Conversation ")
	tv.SetBorderColor(theme.BorderColor)
	tv.SetTitleColor(theme.TitleColor)
	tv.SetBackgroundColor(theme.BgColor)

	return &ThreadView{TextView: tv, theme: theme}
}

// SetContact updates the pane title with the remote party.
func (tv *ThreadView) SetContact(name, phone string) {
	if name != "" {
		tv.contact = name
	}
	if phone != "" {
		tv.phone = phone
	}
	title := tv.contact
	if title == "" {
		title = tv.phone
	} else if tv.phone != "" {
		title += " " + tv.phone
	}
	tv.SetTitle(fmt.Sprintf(" %s ", sanitizeForTerminal(title)))
}

// SetMessages replaces the rendered window. Messages are expected oldest
// first, which is how the cache stores them.
func (tv *ThreadView) SetMessages(msgs []cache.Message) {
	tv.messages = msgs
	tv.atStart = false
	tv.render()
	tv.ScrollToEnd()
}

// PrependOlder inserts a history page above the current window and keeps
// the scroll position at the top of the new content.
func (tv *ThreadView) PrependOlder(msgs []cache.Message, hasMore bool) {
	tv.messages = append(append([]cache.Message{}, msgs...), tv.messages...)
	tv.atStart = !hasMore
	tv.render()
	tv.ScrollToBeginning()
}

// Reset clears the pane for the next conversation.
func (tv *ThreadView) Reset() {
	tv.messages = nil
	tv.contact = ""
	tv.phone = ""
	tv.atStart = false
	tv.Clear()
	tv.SetTitle(" Conversation ")
}

func (tv *ThreadView) render() {
	tv.Clear()
	if tv.atStart {
		_, _ = fmt.Fprint(tv, "[::d]-- beginning of history --[-:-:-]\n\n")
	}
	for _, m := range tv.messages {
		sender := tv.contact
		if sender == "" {
			sender = tv.phone
		}
		if strings.HasPrefix(m.Direction, "out") {
			sender = "You"
		}

		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s %s[-:-:-]\n%s\n\n",
			sanitizeForTerminal(sender), formatClock(m.SentAt), m.Status,
			tview.Escape(sanitizeForTerminal(m.Content)))
		_, _ = fmt.Fprint(tv, line)
	}
}
