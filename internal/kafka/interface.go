package kafka

import "context"

// StreamEvent represents a stream lifecycle change event.
type StreamEvent struct {
	Type        string `json:"type"` // "stream_started" | "stream_stopped"
	RoomID      string `json:"room_id"`
	StreamID    string `json:"stream_id"`
	DisplayName string `json:"display_name,omitempty"`
	Reason      string `json:"reason,omitempty"` // "explicit" | "disconnect"
	Timestamp   int64  `json:"timestamp"`
}

// Event types
const (
	EventStreamStarted = "stream_started"
	EventStreamStopped = "stream_stopped"
)

// Stop reasons
const (
	ReasonExplicit   = "explicit"
	ReasonDisconnect = "disconnect"
)

// StreamEventProducer defines the interface for producing stream
// lifecycle events for downstream consumers (event pages, presence
// dashboards). The relay treats the producer as non-critical: a nil
// producer disables it and produce failures never reach the wire path.
type StreamEventProducer interface {
	ProduceStreamStarted(ctx context.Context, roomID, streamID, displayName string) error
	ProduceStreamStopped(ctx context.Context, roomID, streamID, reason string) error
	Close() error
}
