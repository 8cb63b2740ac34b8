package history

import (
	"testing"

	"watchwise/internal/conversation"
)

func TestSessionPutGetReset(t *testing.T) {
	h := NewManager()
	userA := int64(1)
	userB := int64(2)

	h.Put(userA, Session{State: conversation.State{Phase: conversation.Gathering, Answered: 2}, Selected: []string{"Comedy"}})
	h.Put(userB, Session{State: conversation.State{Phase: conversation.Ready}})

	a, ok := h.Get(userA)
	if !ok || a.State.Answered != 2 || len(a.Selected) != 1 {
		t.Fatalf("unexpected session A: %+v", a)
	}

	// Ensure copy semantics (modifying returned slice does not affect internal state)
	a.Selected[0] = "mutated"
	a2, _ := h.Get(userA)
	if a2.Selected[0] != "Comedy" {
		t.Fatalf("internal state mutated via returned slice")
	}

	h.Reset(userA)
	if _, ok := h.Get(userA); ok {
		t.Fatalf("reset did not clear user A")
	}
	if b, ok := h.Get(userB); !ok || b.State.Phase != conversation.Ready {
		t.Fatalf("reset should not affect other users")
	}
	if h.Len() != 1 {
		t.Fatalf("want 1 session, got %d", h.Len())
	}
}

func TestSessionToggle(t *testing.T) {
	var s Session
	if !s.Toggle("Drama") || !s.Toggle("Comedy") {
		t.Fatalf("first toggles should select")
	}
	if s.Toggle("Drama") {
		t.Fatalf("second toggle should deselect")
	}
	if s.IsSelected("Drama") || !s.IsSelected("Comedy") {
		t.Fatalf("unexpected selection: %v", s.Selected)
	}
}
