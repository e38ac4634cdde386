// Package keys holds the console keybinding registry.
package keys

import (
	"sort"

	"github.com/gdamore/tcell/v2"
	"github.com/safegreen/waconsole/internal/tui/ui"
)

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Label       string
	Description string
	Handler     func()
	Visible     bool
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings organized by scope. View bindings shadow
// global ones for the same key.
type Registry struct {
	global map[string]*Action
	views  map[string]map[string]*Action
}

// NewRegistry creates an empty keybinding registry.
func NewRegistry() *Registry {
	return &Registry{
		global: make(map[string]*Action),
		views:  make(map[string]map[string]*Action),
	}
}

// AddGlobal registers a keybinding active on every view.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global[name] = action
}

// AddView registers a view-specific keybinding.
func (r *Registry) AddView(view, name string, action *Action) {
	if r.views[view] == nil {
		r.views[view] = make(map[string]*Action)
	}
	r.views[view][name] = action
}

// Hints returns the visible bindings for a view, view-specific first,
// each group sorted by label for a stable menu line.
func (r *Registry) Hints(view string) []ui.MenuHint {
	var hints []ui.MenuHint
	hints = append(hints, collect(r.views[view])...)
	hints = append(hints, collect(r.global)...)
	return hints
}

func collect(actions map[string]*Action) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, a := range actions {
		if a.Visible {
			hints = append(hints, ui.MenuHint{Key: a.Label, Description: a.Description})
		}
	}
	sort.Slice(hints, func(i, j int) bool { return hints[i].Key < hints[j].Key })
	return hints
}

// HandleEvent dispatches a key event to the matching action in the given
// view. Returns true if a handler matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	if bindings, ok := r.views[view]; ok {
		for _, a := range bindings {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
