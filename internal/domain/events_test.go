package domain

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload interface{}
	}{
		{"join-room", EventJoinRoom, &JoinRoomPayload{RoomID: "evt-42", DisplayName: "alice"}},
		{"start-stream", EventStartStream, &StartStreamPayload{RoomID: "evt-42", StreamID: "s1", DisplayName: "alice"}},
		{"end-stream", EventEndStream, &EndStreamPayload{RoomID: "evt-42", StreamID: "s1", DisplayName: "alice"}},
		{"viewer-joined", EventViewerJoined, &ViewerJoinedPayload{RoomID: "evt-42", Viewers: 2, Username: "bob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.event, tt.payload)
			if err != nil {
				t.Fatalf("NewEnvelope: %v", err)
			}

			raw, err := json.Marshal(env)
			if err != nil {
				t.Fatalf("marshal envelope: %v", err)
			}

			var decoded Envelope
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatalf("unmarshal envelope: %v", err)
			}
			if decoded.Event != tt.event {
				t.Errorf("event = %q, want %q", decoded.Event, tt.event)
			}
		})
	}
}

func TestStreamChunkPayloadCarriesBinary(t *testing.T) {
	chunk := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x00, 0xFF, 0x80}
	env, err := NewEnvelope(EventStreamChunk, &StreamChunkPayload{
		RoomID:      "evt-42",
		StreamID:    "s1",
		DisplayName: "alice",
		Chunk:       chunk,
	})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	var p StreamChunkPayload
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if !bytes.Equal(p.Chunk, chunk) {
		t.Errorf("chunk = %x, want %x", p.Chunk, chunk)
	}
	if p.StreamID != "s1" {
		t.Errorf("streamId = %q, want s1", p.StreamID)
	}
}

func TestDecodeUnknownFieldsIgnored(t *testing.T) {
	raw := []byte(`{"event":"join-room","data":{"roomId":"evt-42","displayName":"alice","extra":1}}`)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var p JoinRoomPayload
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.RoomID != "evt-42" || p.DisplayName != "alice" {
		t.Errorf("payload = %+v", p)
	}
}

func TestNewErrorEnvelope(t *testing.T) {
	env := NewErrorEnvelope(ErrCodeBadRequest, "bad frame")
	if env.Event != EventError {
		t.Fatalf("event = %q, want %q", env.Event, EventError)
	}
	var p ErrorPayload
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.Code != ErrCodeBadRequest {
		t.Errorf("code = %q, want %q", p.Code, ErrCodeBadRequest)
	}
}
