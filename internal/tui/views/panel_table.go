package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/safegreen/waconsole/internal/httpapi"
	"github.com/safegreen/waconsole/internal/tui/ui"
)

// PanelTable lists the conversations of the active panel tab.
type PanelTable struct {
	*tview.Table
	theme    *ui.Theme
	items    []httpapi.PanelItem
	onSelect func(item httpapi.PanelItem)
}

// NewPanelTable creates the conversation table.
func NewPanelTable(theme *ui.Theme) *PanelTable {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")
	table.SetBorderColor(theme.BorderColor)
	table.SetTitleColor(theme.TitleColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	pt := &PanelTable{Table: table, theme: theme}
	table.SetSelectedFunc(func(row, col int) {
		if item, ok := pt.itemAt(row); ok && pt.onSelect != nil {
			pt.onSelect(item)
		}
	})
	return pt
}

// SetOnSelect sets the callback when a conversation is opened.
func (pt *PanelTable) SetOnSelect(fn func(item httpapi.PanelItem)) {
	pt.onSelect = fn
}

// Update replaces the table contents with the given panel's rows. A panel
// the server rendered as an html block has no structured rows; the block
// is shown as a single informational row.
func (pt *PanelTable) Update(key string, panel httpapi.Panel) {
	pt.items = panel.Items
	pt.Clear()
	pt.SetTitle(fmt.Sprintf(" %s (%d) ", key, panel.Count))

	header := func(col int, text string) {
		pt.SetCell(0, col, tview.NewTableCell(" "+text).
			SetSelectable(false).
			SetTextColor(pt.theme.TableHeaderFg))
	}
	header(0, "Contact")
	header(1, "Preview")
	header(2, "Unread")
	header(3, "Updated")

	if panel.Empty || (len(panel.Items) == 0 && panel.HTML != "") {
		pt.SetCell(1, 0, tview.NewTableCell(" (no conversations)").SetSelectable(false))
		return
	}

	for i, item := range panel.Items {
		row := i + 1
		contact := sanitizeForTerminal(item.Contact)
		if contact == "" {
			contact = fmt.Sprintf("#%d", item.ThreadID)
		}
		unread := ""
		if item.Unread > 0 {
			contact = "* " + contact
			unread = fmt.Sprintf("%d", item.Unread)
		}

		contactCell := tview.NewTableCell(" " + contact).SetMaxWidth(28).SetExpansion(1)
		if item.Unread > 0 {
			contactCell.SetTextColor(pt.theme.UnreadColor)
		}
		pt.SetCell(row, 0, contactCell)
		pt.SetCell(row, 1, tview.NewTableCell(" "+sanitizeForTerminal(item.Preview)).SetMaxWidth(48).SetExpansion(2))
		pt.SetCell(row, 2, tview.NewTableCell(" "+unread).SetMaxWidth(8))
		pt.SetCell(row, 3, tview.NewTableCell(" "+formatClock(item.UpdatedAt)).SetMaxWidth(10))
	}
}

// Selected returns the currently highlighted conversation.
func (pt *PanelTable) Selected() (httpapi.PanelItem, bool) {
	row, _ := pt.GetSelection()
	return pt.itemAt(row)
}

func (pt *PanelTable) itemAt(row int) (httpapi.PanelItem, bool) {
	idx := row - 1 // header row
	if idx >= 0 && idx < len(pt.items) {
		return pt.items[idx], true
	}
	return httpapi.PanelItem{}, false
}
