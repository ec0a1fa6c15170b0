// internal/session/session.go
package session

import (
	"log"
	"sync"
)

// Session is a single verified identity's live presence on the server.
// There is at most one Session per identity at a time; a reconnect evicts
// the previous one (see Registry.Register).
type Session struct {
	UserID   int64
	Username string

	// Cancel tears down the goroutines owned by the underlying connection
	// (read/write pumps). Assigned by the WS handler.
	Cancel func()

	// OutChan is drained by the connection's write pump.
	OutChan chan map[string]interface{}

	mu     sync.Mutex
	closed bool
}

// New builds a Session with a buffered outbound channel.
func New(userID int64, username string) *Session {
	return &Session{
		UserID:   userID,
		Username: username,
		OutChan:  make(chan map[string]interface{}, 32),
	}
}

// Write pushes a message onto the session's OutChan non-blockingly.
// Writes to a closed or backed-up session are dropped and logged; rooms and
// tournaments hold Session pointers past disconnect, so a late write must
// never panic or stall a tick.
func (s *Session) Write(msg map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		log.Printf("session %d: OutChan full, dropped message type %q", s.UserID, msgType)
	}
}

// WriteError is a convenience to send an error object.
func (s *Session) WriteError(msg string) {
	s.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Close marks the session dead, stops the write pump and cancels the
// connection context. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.OutChan)
	s.mu.Unlock()

	if s.Cancel != nil {
		s.Cancel()
	}
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
