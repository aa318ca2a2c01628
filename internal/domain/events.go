package domain

import "encoding/json"

// Relay event names. Client→server names double as the server→room
// broadcast names, so a browser or CLI participant speaks one vocabulary.
//
// All events ride as JSON text frames on a single websocket per
// participant. Per-connection FIFO delivery is a hard dependency of the
// chunk ordering contract: the relay assigns no sequence numbers, so an
// unordered transport would need a sequence field added to
// StreamChunkPayload plus a reorder window on the viewer side.
const (
	EventJoinRoom      = "join-room"
	EventStartStream   = "start-stream"
	EventStreamChunk   = "stream-chunk"
	EventEndStream     = "end-stream"
	EventViewerJoined  = "viewer-joined"
	EventViewerCount   = "viewer-count"
	EventActiveStreams = "active-streams"
	EventError         = "error"
)

// Envelope is the wire frame: an event name plus its typed payload.
// Payloads are decoded at the transport boundary into the fixed structs
// below; nothing downstream touches raw JSON.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope for the given event and payload.
func NewEnvelope(event string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: data}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Client → server payloads.

// JoinRoomPayload subscribes the connection to a room's broadcast group.
type JoinRoomPayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

// StartStreamPayload registers the sender as a streamer in the room.
// StreamID is minted by the publishing client and opaque to the relay.
type StartStreamPayload struct {
	RoomID      string `json:"roomId"`
	StreamID    string `json:"streamId"`
	DisplayName string `json:"displayName"`
}

// EndStreamPayload ends the sender's stream in the room.
type EndStreamPayload struct {
	RoomID      string `json:"roomId"`
	StreamID    string `json:"streamId"`
	DisplayName string `json:"displayName"`
}

// StreamChunkPayload carries one binary media chunk. Chunk bytes are
// base64-encoded by the JSON codec.
type StreamChunkPayload struct {
	RoomID      string `json:"roomId"`
	StreamID    string `json:"streamId"`
	DisplayName string `json:"displayName"`
	Chunk       []byte `json:"chunk"`
}

// Server → client payloads.

// ViewerJoinedPayload notifies a streamer that a viewer joined, with the
// recomputed occupancy.
type ViewerJoinedPayload struct {
	RoomID   string `json:"roomId"`
	Viewers  int    `json:"viewers"`
	Username string `json:"username"`
}

// ViewerCountPayload pushes the recomputed room occupancy to all members.
type ViewerCountPayload struct {
	RoomID  string `json:"roomId"`
	Viewers int    `json:"viewers"`
}

// StreamInfo identifies one active stream for discovery.
type StreamInfo struct {
	StreamID    string `json:"streamId"`
	DisplayName string `json:"displayName"`
}

// ActiveStreamsPayload is the join-time snapshot of streams already
// running in the room, so late joiners can attach without waiting for the
// next start-stream.
type ActiveStreamsPayload struct {
	RoomID  string       `json:"roomId"`
	Streams []StreamInfo `json:"streams"`
}

// ErrorPayload reports a per-connection failure. Errors never fan out to
// the room.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotInRoom     = "NOT_IN_ROOM"
	ErrCodeNotStreaming  = "NOT_STREAMING"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewErrorEnvelope creates an error event envelope.
func NewErrorEnvelope(code, message string) *Envelope {
	env, _ := NewEnvelope(EventError, &ErrorPayload{Code: code, Message: message})
	return env
}
