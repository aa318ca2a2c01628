package domain

import (
	"sync"
	"time"
)

// Session holds the per-connection state the relay cares about: the room
// the connection currently sits in and the display name supplied by the
// surrounding event/auth layer.
type Session struct {
	ID            string
	DisplayName   string
	CurrentRoomID string
	CreatedAt     time.Time
	LastActiveAt  time.Time
	mu            sync.RWMutex
}

// NewSession creates a new session for the given connection id.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// JoinRoom records the current room and display name.
func (s *Session) JoinRoom(roomID, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentRoomID = roomID
	s.DisplayName = displayName
	s.LastActiveAt = time.Now()
}

// LeaveRoom clears the current room.
func (s *Session) LeaveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentRoomID = ""
	s.LastActiveAt = time.Now()
}

// CurrentRoom returns the current room ID, empty if none.
func (s *Session) CurrentRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CurrentRoomID
}

// Name returns the display name recorded at join time.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DisplayName
}

// UpdateActivity updates the last active timestamp.
func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
