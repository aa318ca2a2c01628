// Package registry owns the authoritative map of room → active streamers.
// It is constructed once at process start and passed by handle to the
// relay service; there is no package-level instance. All state is
// in-memory and process-scoped: a relay restart drops every entry, which
// the wire contract treats as an implicit end of all streams.
package registry

import (
	"sync"

	"github.com/AndlerRL/stream-u-media/internal/domain"
)

// Registry tracks which connections are streaming in which rooms.
// Mutations for a room are linearized under the mutex so a concurrent
// start/end/disconnect cannot resurrect a removed streamer.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]domain.Streamer // roomID -> connectionID -> streamer
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]domain.Streamer),
	}
}

// Add registers a streamer under its room. A connection may hold at most
// one stream per room; a second Add from the same connection replaces the
// first registration and returns it so the caller can announce its end.
func (r *Registry) Add(s domain.Streamer) (domain.Streamer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[s.RoomID]
	if !ok {
		room = make(map[string]domain.Streamer)
		r.rooms[s.RoomID] = room
	}
	prev, replaced := room[s.ConnectionID]
	room[s.ConnectionID] = s
	return prev, replaced
}

// Remove deletes the streamer registered by connID in roomID and returns
// it. Lookup is by connection id, never by stream id, so a connection can
// only end the stream it owns.
func (r *Registry) Remove(roomID, connID string) (domain.Streamer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return domain.Streamer{}, false
	}
	s, ok := room[connID]
	if !ok {
		return domain.Streamer{}, false
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
	}
	return s, true
}

// RemoveConnection deletes every registration owned by connID across all
// rooms and returns the removed streamers. This is the disconnect cleanup
// path.
func (r *Registry) RemoveConnection(connID string) []domain.Streamer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []domain.Streamer
	for roomID, room := range r.rooms {
		if s, ok := room[connID]; ok {
			removed = append(removed, s)
			delete(room, connID)
			if len(room) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	return removed
}

// Streamers returns a snapshot of the active streamers in roomID.
func (r *Registry) Streamers(roomID string) []domain.Streamer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomID]
	if len(room) == 0 {
		return nil
	}
	out := make([]domain.Streamer, 0, len(room))
	for _, s := range room {
		out = append(out, s)
	}
	return out
}

// StreamerCount returns the number of active streamers in roomID.
func (r *Registry) StreamerCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}
