package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestViewBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal("refresh", &Action{
		Key: tcell.KeyRune, Rune: 'r',
		Handler: func() { got = "global" },
	})
	r.AddView("panels", "refresh", &Action{
		Key: tcell.KeyRune, Rune: 'r',
		Handler: func() { got = "panels" },
	})

	ev := tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)
	if !r.HandleEvent("panels", ev) {
		t.Fatal("expected a handler to match")
	}
	if got != "panels" {
		t.Errorf("expected view binding to win, got %q", got)
	}

	got = ""
	if !r.HandleEvent("thread", ev) {
		t.Fatal("expected global handler to match on other view")
	}
	if got != "global" {
		t.Errorf("expected global binding, got %q", got)
	}
}

func TestNonRuneKeyMatch(t *testing.T) {
	r := NewRegistry()
	fired := false
	r.AddView("panels", "next", &Action{
		Key:     tcell.KeyTab,
		Handler: func() { fired = true },
	})

	if r.HandleEvent("panels", tcell.NewEventKey(tcell.KeyRune, '\t', tcell.ModNone)) {
		t.Error("rune event should not match a non-rune binding")
	}
	if !r.HandleEvent("panels", tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone)) {
		t.Fatal("expected tab binding to match")
	}
	if !fired {
		t.Error("handler did not run")
	}
}

func TestHintsOnlyVisibleSorted(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "quit", Visible: true, Handler: func() {}})
	r.AddGlobal("secret", &Action{Key: tcell.KeyRune, Rune: 'z', Label: "z", Description: "hidden", Handler: func() {}})
	r.AddView("panels", "refresh", &Action{Key: tcell.KeyRune, Rune: 'r', Label: "r", Description: "refresh", Visible: true, Handler: func() {}})

	hints := r.Hints("panels")
	if len(hints) != 2 {
		t.Fatalf("expected 2 visible hints, got %d", len(hints))
	}
	if hints[0].Key != "r" || hints[1].Key != "q" {
		t.Errorf("expected view hints before global, got %+v", hints)
	}
}
