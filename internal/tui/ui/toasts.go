package ui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rivo/tview"
	"github.com/safegreen/waconsole/internal/notify"
)

// ToastStack holds the currently visible toasts in arrival order. Raising
// a toast whose id is already present replaces it in place, so a refreshed
// alert keeps its slot instead of jumping to the end.
type ToastStack struct {
	mu     sync.Mutex
	order  []string
	toasts map[string]notify.Toast
}

// NewToastStack creates an empty toast stack.
func NewToastStack() *ToastStack {
	return &ToastStack{
		toasts: make(map[string]notify.Toast),
	}
}

// Upsert adds or replaces a toast.
func (s *ToastStack) Upsert(t notify.Toast) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.toasts[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.toasts[t.ID] = t
}

// Dismiss removes a toast by id. Unknown ids are ignored.
func (s *ToastStack) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.toasts[id]; !ok {
		return
	}
	delete(s.toasts, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Active returns the visible toasts, oldest first.
func (s *ToastStack) Active() []notify.Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Toast, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.toasts[id])
	}
	return out
}

// Latest returns the most recent non-sticky toast plus every sticky one.
// Sticky toasts always stay visible; transient ones collapse to the newest.
func (s *ToastStack) Latest() []notify.Toast {
	all := s.Active()
	var out []notify.Toast
	var newest *notify.Toast
	for i := range all {
		if all[i].Sticky {
			out = append(out, all[i])
		} else {
			newest = &all[i]
		}
	}
	if newest != nil {
		out = append(out, *newest)
	}
	return out
}

// ToastBar renders the toast stack on a single line.
type ToastBar struct {
	*tview.TextView
	theme *Theme
	stack *ToastStack
}

// NewToastBar creates the toast line bound to a stack.
func NewToastBar(theme *Theme, stack *ToastStack) *ToastBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &ToastBar{
		TextView: tv,
		theme:    theme,
		stack:    stack,
	}
}

// Update re-renders the bar from the stack.
func (b *ToastBar) Update() {
	b.Clear()

	visible := b.stack.Latest()
	if len(visible) == 0 {
		return
	}

	parts := make([]string, 0, len(visible))
	for _, t := range visible {
		color := colorName(b.theme.ToastColor)
		if t.Sticky {
			color = colorName(b.theme.ToastStickyColor)
		}
		text := t.Title
		if t.Body != "" {
			text += ": " + t.Body
		}
		parts = append(parts, fmt.Sprintf("[%s]%s[-]", color, tview.Escape(text)))
	}
	_, _ = fmt.Fprint(b, " "+strings.Join(parts, "  |  "))
}
