package service

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"stockpulse/internal/model"
)

// sessionBuffer is how many events a single SSE session can lag behind
// before pushes to it start being dropped.
const sessionBuffer = 16

// SSEEvent is one server-sent event: a name plus a JSON data line.
type SSEEvent struct {
	Name string
	Data string
}

// SSESession is one open event stream for one user. A user may hold several
// sessions at once (multiple tabs, multiple devices).
type SSESession struct {
	ID     string
	UserID int64

	// Events delivers pushed events to the streaming handler.
	Events chan SSEEvent

	hub       *SSEHub
	closeOnce sync.Once
}

// Close detaches the session from the hub and releases its channel.
// Safe to call more than once; the streaming handler calls it when the
// client disconnects.
func (s *SSESession) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.Events)
	})
}

// SSEHub keeps the process-wide registry of live event streams, keyed by
// user. State is in-memory only: a restart drops every session and clients
// reconnect on their own (standard SSE retry semantics).
//
// The hub is constructor-injected wherever it is needed; it is never a
// package-level singleton.
type SSEHub struct {
	mu       sync.RWMutex
	sessions map[int64][]*SSESession
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		sessions: make(map[int64][]*SSESession),
	}
}

// Register creates a new session for the user and returns it. The caller
// (the SSE streaming endpoint) owns the session and must Close it when the
// connection ends.
func (h *SSEHub) Register(userID int64) *SSESession {
	session := &SSESession{
		ID:     uuid.NewString(),
		UserID: userID,
		Events: make(chan SSEEvent, sessionBuffer),
		hub:    h,
	}

	h.mu.Lock()
	h.sessions[userID] = append(h.sessions[userID], session)
	h.mu.Unlock()

	// Initial event confirms the stream is live before any alert arrives.
	session.Events <- SSEEvent{Name: "connected", Data: `"connection established"`}

	log.Printf("[SSE] Registered session=%s user=%d", session.ID, userID)
	return session
}

// PushToUser delivers a notification to every open session of the user.
// A slow or dead session is skipped, never waited on: one stuck tab must
// not block delivery to the others or fail the dispatcher.
func (h *SSEHub) PushToUser(userID int64, n *model.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Printf("[SSE] Marshal notification failed: user=%d err=%v", userID, err)
		return
	}
	event := SSEEvent{Name: "alert", Data: string(data)}

	h.mu.RLock()
	sessions := make([]*SSESession, len(h.sessions[userID]))
	copy(sessions, h.sessions[userID])
	h.mu.RUnlock()

	if len(sessions) == 0 {
		return
	}

	var dropped int
	for _, s := range sessions {
		if !s.trySend(event) {
			dropped++
		}
	}
	if dropped > 0 {
		log.Printf("[SSE] Push: user=%d sessions=%d dropped=%d", userID, len(sessions), dropped)
	}
}

// trySend writes the event without blocking. Sending on a closed channel
// (a session torn down concurrently) is recovered and reported as a drop.
func (s *SSESession) trySend(event SSEEvent) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.Events <- event:
		return true
	default:
		return false
	}
}

// SessionCount reports the number of open sessions across all users.
func (h *SSEHub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, sessions := range h.sessions {
		count += len(sessions)
	}
	return count
}

func (h *SSEHub) remove(session *SSESession) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions := h.sessions[session.UserID]
	for i, s := range sessions {
		if s.ID == session.ID {
			h.sessions[session.UserID] = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(h.sessions[session.UserID]) == 0 {
		delete(h.sessions, session.UserID)
	}
	log.Printf("[SSE] Removed session=%s user=%d", session.ID, session.UserID)
}
