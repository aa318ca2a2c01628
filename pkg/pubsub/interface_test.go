package pubsub

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRoomEventsChannel(t *testing.T) {
	if got := RoomEventsChannel("evt-42"); got != "relay:room:evt-42:events" {
		t.Errorf("RoomEventsChannel = %q, want relay:room:evt-42:events", got)
	}
}

// An event must survive the publish/subscribe boundary: what a
// subscriber decodes from the wire bytes is exactly what was published.
func TestEventSurvivesWireEncoding(t *testing.T) {
	published, err := NewEvent(EventRoomUpdate, "evt-42", &RoomUpdatePayload{
		RoomID:      "evt-42",
		Viewers:     3,
		LiveStreams: []string{"s1", "s2"},
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if published.Timestamp.IsZero() {
		t.Error("NewEvent left the timestamp unset")
	}

	wire, err := json.Marshal(published)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	var received Event
	if err := json.Unmarshal(wire, &received); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if received.Type != EventRoomUpdate || received.RoomID != "evt-42" {
		t.Errorf("received envelope = {%s %s}, want {%s evt-42}", received.Type, received.RoomID, EventRoomUpdate)
	}

	var p RoomUpdatePayload
	if err := received.UnmarshalPayload(&p); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	want := RoomUpdatePayload{RoomID: "evt-42", Viewers: 3, LiveStreams: []string{"s1", "s2"}}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("payload = %+v, want %+v", p, want)
	}
}

func TestUnmarshalPayloadRejectsWrongShape(t *testing.T) {
	ev, err := NewEvent(EventStreamLive, "evt-42", &StreamLivePayload{
		RoomID: "evt-42", StreamID: "s1", DisplayName: "alice",
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	var p StreamLivePayload
	if err := ev.UnmarshalPayload(&p); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if p.StreamID != "s1" || p.DisplayName != "alice" {
		t.Errorf("payload = %+v, want s1/alice", p)
	}

	var wrong int
	if err := ev.UnmarshalPayload(&wrong); err == nil {
		t.Error("UnmarshalPayload into a mismatched type succeeded, want error")
	}
}
