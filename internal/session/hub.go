// Package session manages live client WebSocket sessions at the gateway.
// The hub is process-local: cross-process job-to-session lookup goes through
// the connection registry, which stores session ids, not socket handles.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoSession is returned when the target session is not connected to this
// process.
var ErrNoSession = errors.New("session not connected")

// ErrStaleSession is returned when the session exists but can no longer
// accept writes (client gone, buffer wedged). Callers fail soft: clean up
// and move on.
var ErrStaleSession = errors.New("session is stale")

// Session is one live client connection.
type Session interface {
	ID() string
	Send(payload []byte) error
}

// Hub tracks connected sessions by id.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Session
	logger   *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]Session),
		logger:   logger,
	}
}

// Register adds a session.
func (h *Hub) Register(s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID()] = s
	h.logger.Debug("session registered", "session_id", s.ID(), "total", len(h.sessions))
}

// Unregister removes a session by id.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
	h.logger.Debug("session unregistered", "session_id", sessionID, "total", len(h.sessions))
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Push serializes v and sends it to the given session. Returns ErrNoSession
// if the session is not connected here, ErrStaleSession if the write fails.
func (h *Hub) Push(sessionID string, v any) error {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, sessionID)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize push payload: %w", err)
	}
	if err := s.Send(payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStaleSession, sessionID, err)
	}
	return nil
}
