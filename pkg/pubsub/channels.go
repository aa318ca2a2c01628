package pubsub

import "fmt"

// Channel naming for relay room updates. External collaborators (event
// pages, presence dashboards, sibling relay instances) subscribe here;
// the relay only publishes.
const ChannelRoomEvents = "relay:room:%s:events"

// Event types published by the relay.
const (
	EventRoomUpdate  = "room_update"
	EventStreamLive  = "stream_live"
	EventStreamEnded = "stream_ended"
)

// RoomEventsChannel returns the channel name for a room's updates.
func RoomEventsChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomEvents, roomID)
}

// RoomUpdatePayload carries the recomputed occupancy and the ids of the
// streams currently live in the room.
type RoomUpdatePayload struct {
	RoomID      string   `json:"room_id"`
	Viewers     int      `json:"viewers"`
	LiveStreams []string `json:"live_streams"`
}

// StreamLivePayload is published when a stream starts.
type StreamLivePayload struct {
	RoomID      string `json:"room_id"`
	StreamID    string `json:"stream_id"`
	DisplayName string `json:"display_name"`
}

// StreamEndedPayload is published when a stream ends, explicitly or via
// transport disconnect.
type StreamEndedPayload struct {
	RoomID   string `json:"room_id"`
	StreamID string `json:"stream_id"`
	Reason   string `json:"reason"` // "explicit", "disconnect"
}
