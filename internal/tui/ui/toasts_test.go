package ui

import (
	"testing"

	"github.com/safegreen/waconsole/internal/notify"
)

func TestToastStackUpsertReplacesInPlace(t *testing.T) {
	s := NewToastStack()
	s.Upsert(notify.Toast{ID: "a", Title: "first"})
	s.Upsert(notify.Toast{ID: "b", Title: "second"})
	s.Upsert(notify.Toast{ID: "a", Title: "updated"})

	active := s.Active()
	if len(active) != 2 {
		t.Fatalf("expected 2 toasts, got %d", len(active))
	}
	if active[0].ID != "a" || active[0].Title != "updated" {
		t.Errorf("expected toast a updated in place, got %+v", active[0])
	}
	if active[1].ID != "b" {
		t.Errorf("expected toast b second, got %+v", active[1])
	}
}

func TestToastStackDismiss(t *testing.T) {
	s := NewToastStack()
	s.Upsert(notify.Toast{ID: "a"})
	s.Upsert(notify.Toast{ID: "b"})

	s.Dismiss("a")
	s.Dismiss("missing") // ignored

	active := s.Active()
	if len(active) != 1 || active[0].ID != "b" {
		t.Fatalf("expected only toast b, got %+v", active)
	}
}

func TestToastStackLatestKeepsSticky(t *testing.T) {
	s := NewToastStack()
	s.Upsert(notify.Toast{ID: "offline", Title: "Lines offline", Sticky: true})
	s.Upsert(notify.Toast{ID: "m1", Title: "Alice"})
	s.Upsert(notify.Toast{ID: "m2", Title: "Bob"})

	visible := s.Latest()
	if len(visible) != 2 {
		t.Fatalf("expected sticky + newest transient, got %d", len(visible))
	}
	if !visible[0].Sticky {
		t.Errorf("expected sticky toast first, got %+v", visible[0])
	}
	if visible[1].ID != "m2" {
		t.Errorf("expected newest transient toast, got %+v", visible[1])
	}
}
