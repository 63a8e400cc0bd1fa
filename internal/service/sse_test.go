package service

import (
	"encoding/json"
	"testing"
	"time"

	"stockpulse/internal/model"
)

func drainInitial(t *testing.T, s *SSESession) {
	t.Helper()
	event := <-s.Events
	if event.Name != "connected" {
		t.Fatalf("expected initial connected event, got %q", event.Name)
	}
}

func TestSSEHub_RegisterSendsConnectedEvent(t *testing.T) {
	hub := NewSSEHub()
	session := hub.Register(7)
	defer session.Close()

	drainInitial(t, session)

	if hub.SessionCount() != 1 {
		t.Errorf("expected 1 session, got %d", hub.SessionCount())
	}
}

func TestSSEHub_PushReachesEverySessionOfUser(t *testing.T) {
	hub := NewSSEHub()
	tab1 := hub.Register(7)
	tab2 := hub.Register(7)
	other := hub.Register(8)
	defer tab1.Close()
	defer tab2.Close()
	defer other.Close()
	drainInitial(t, tab1)
	drainInitial(t, tab2)
	drainInitial(t, other)

	hub.PushToUser(7, &model.Notification{ID: 42, UserID: 7, Title: "hello"})

	for _, s := range []*SSESession{tab1, tab2} {
		event := <-s.Events
		if event.Name != "alert" {
			t.Errorf("expected alert event, got %q", event.Name)
		}
		var n model.Notification
		if err := json.Unmarshal([]byte(event.Data), &n); err != nil {
			t.Fatalf("event data is not a notification: %v", err)
		}
		if n.ID != 42 {
			t.Errorf("expected notification 42, got %d", n.ID)
		}
	}

	select {
	case event := <-other.Events:
		t.Errorf("user 8 must not receive user 7's alert, got %+v", event)
	default:
	}
}

func TestSSEHub_PushToUserWithoutSessionsIsNoop(t *testing.T) {
	hub := NewSSEHub()
	// Nothing to assert beyond not panicking.
	hub.PushToUser(7, &model.Notification{ID: 1, UserID: 7})
}

func TestSSEHub_CloseRemovesSession(t *testing.T) {
	hub := NewSSEHub()
	session := hub.Register(7)
	drainInitial(t, session)

	session.Close()
	session.Close() // safe to call twice

	if hub.SessionCount() != 0 {
		t.Errorf("expected 0 sessions after close, got %d", hub.SessionCount())
	}
	if _, open := <-session.Events; open {
		t.Error("expected events channel closed")
	}
}

func TestSSEHub_SlowSessionDoesNotBlockPush(t *testing.T) {
	hub := NewSSEHub()
	stuck := hub.Register(7)
	defer stuck.Close()
	// Leave the initial event unread and fill the rest of the buffer.
	for i := 0; i < cap(stuck.Events)-1; i++ {
		hub.PushToUser(7, &model.Notification{ID: int64(i), UserID: 7})
	}

	// Buffer full now; this push must drop rather than block.
	done := make(chan struct{})
	go func() {
		hub.PushToUser(7, &model.Notification{ID: 99, UserID: 7})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked on a stuck session")
	}
}

func TestSSEHub_PushAfterCloseIsDropped(t *testing.T) {
	hub := NewSSEHub()
	session := hub.Register(7)
	drainInitial(t, session)
	session.Close()

	// The hub no longer tracks the session; nothing to panic on.
	hub.PushToUser(7, &model.Notification{ID: 1, UserID: 7})
}
