// Package dictation carries the live dictation WebSocket. A client streams
// transcript segments, gets a provisional identity preview after each one,
// and on finalize the accumulated transcript runs through the regular
// intake pipeline.
package dictation

import (
	"strings"
	"sync"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/platform/metrics"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is a single dictation connection with its accumulated transcript.
type Session struct {
	ID   string
	Send chan []byte

	hub  *Hub
	conn Conn

	mu       sync.Mutex
	segments []string
}

func (s *Session) append(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	s.segments = append(s.segments, text)
	s.mu.Unlock()
}

// Transcript joins the accumulated segments in arrival order.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.segments, " ")
}

func (s *Session) reset() {
	s.mu.Lock()
	s.segments = nil
	s.mu.Unlock()
}

// Hub tracks active dictation sessions. All operations are thread-safe.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewHub creates a Hub ready to track dictation sessions.
func NewHub() *Hub {
	return &Hub{sessions: make(map[*Session]struct{})}
}

// Register adds a session to the hub and bumps the active-sessions gauge.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	metrics.DictationSessionStarted()
}

// Unregister removes a session, closes its Send channel, and drops the
// gauge. Safe to call more than once per session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	close(s.Send)
	metrics.DictationSessionEnded()
}

// SessionCount returns the number of active sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CloseAll closes the underlying connections of every active session. The
// read pumps observe the close and unregister themselves. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	open := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.conn.Close()
	}
}
