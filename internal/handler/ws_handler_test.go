package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AndlerRL/stream-u-media/internal/config"
	"github.com/AndlerRL/stream-u-media/internal/domain"
	"github.com/AndlerRL/stream-u-media/internal/hub"
	"github.com/AndlerRL/stream-u-media/internal/registry"
	"github.com/AndlerRL/stream-u-media/internal/service"
)

func newTestServer(t *testing.T) string {
	t.Helper()

	cfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 2 << 20,
	}

	wsHub := hub.NewHub(cfg)
	go wsHub.Run()

	reg := registry.New()
	svc := service.NewRelayService(wsHub, reg, nil, nil)
	h := NewWSHandler(wsHub, svc)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// participant is one websocket connection in a test room.
type participant struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, url string) *participant {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return &participant{t: t, ws: ws}
}

func (p *participant) send(event string, payload interface{}) {
	p.t.Helper()
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		p.t.Fatalf("encode %s: %v", event, err)
	}
	if err := p.ws.WriteJSON(env); err != nil {
		p.t.Fatalf("send %s: %v", event, err)
	}
}

// next reads the next frame, failing the test on timeout.
func (p *participant) next() domain.Envelope {
	p.t.Helper()
	p.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env domain.Envelope
	if err := p.ws.ReadJSON(&env); err != nil {
		p.t.Fatalf("read: %v", err)
	}
	return env
}

// expect reads the next frame and asserts its event name.
func (p *participant) expect(event string) *domain.Envelope {
	p.t.Helper()
	env := p.next()
	if env.Event != event {
		p.t.Fatalf("got event %q, want %q", env.Event, event)
	}
	return &env
}

// expectSilence asserts that no frame arrives within the window.
func (p *participant) expectSilence(d time.Duration) {
	p.t.Helper()
	p.ws.SetReadDeadline(time.Now().Add(d))
	var env domain.Envelope
	if err := p.ws.ReadJSON(&env); err == nil {
		p.t.Fatalf("unexpected event %q", env.Event)
	}
}

func (p *participant) join(roomID, name string) {
	p.t.Helper()
	p.send(domain.EventJoinRoom, &domain.JoinRoomPayload{RoomID: roomID, DisplayName: name})
}

func TestJoinDeliversActiveStreamSnapshot(t *testing.T) {
	url := newTestServer(t)

	a := dial(t, url)
	a.join("r1", "alice")
	env := a.expect(domain.EventActiveStreams)

	var snap domain.ActiveStreamsPayload
	if err := env.DecodePayload(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.RoomID != "r1" || len(snap.Streams) != 0 {
		t.Errorf("snapshot = %+v, want empty snapshot for r1", snap)
	}
}

func TestRelayFanOut(t *testing.T) {
	url := newTestServer(t)
	room := "evt-42"

	a := dial(t, url)
	a.join(room, "alice")
	a.expect(domain.EventActiveStreams)

	b := dial(t, url)
	b.join(room, "bob")
	b.expect(domain.EventActiveStreams)

	// Alice starts streaming: bob learns of the stream, both see the
	// recomputed occupancy. Alice must not receive her own start event.
	a.send(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID: room, StreamID: "s1", DisplayName: "alice",
	})
	env := b.expect(domain.EventStartStream)
	var started domain.StartStreamPayload
	if err := env.DecodePayload(&started); err != nil {
		t.Fatalf("decode start-stream: %v", err)
	}
	if started.StreamID != "s1" || started.DisplayName != "alice" {
		t.Errorf("start-stream = %+v, want s1/alice", started)
	}

	var count domain.ViewerCountPayload
	if err := a.expect(domain.EventViewerCount).DecodePayload(&count); err != nil {
		t.Fatalf("decode viewer-count: %v", err)
	}
	if count.Viewers != 2 {
		t.Errorf("alice sees %d viewers, want 2", count.Viewers)
	}
	b.expect(domain.EventViewerCount)

	// Carol joins: only the streamer hears viewer-joined, and the
	// snapshot carries the running stream.
	c := dial(t, url)
	c.join(room, "carol")

	var joined domain.ViewerJoinedPayload
	if err := a.expect(domain.EventViewerJoined).DecodePayload(&joined); err != nil {
		t.Fatalf("decode viewer-joined: %v", err)
	}
	if joined.Viewers != 3 || joined.Username != "carol" {
		t.Errorf("viewer-joined = %+v, want viewers=3 username=carol", joined)
	}

	var snap domain.ActiveStreamsPayload
	if err := c.expect(domain.EventActiveStreams).DecodePayload(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Streams) != 1 || snap.Streams[0].StreamID != "s1" {
		t.Errorf("snapshot = %+v, want [s1]", snap)
	}

	// A chunk reaches every other member byte-identically. The sender
	// never hears its own chunk: frames per connection are ordered, so a
	// leaked echo would surface in alice's reads below.
	payload := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0x01, 0x02}
	a.send(domain.EventStreamChunk, &domain.StreamChunkPayload{
		RoomID: room, StreamID: "s1", DisplayName: "alice", Chunk: payload,
	})
	for _, viewer := range []*participant{b, c} {
		var chunk domain.StreamChunkPayload
		if err := viewer.expect(domain.EventStreamChunk).DecodePayload(&chunk); err != nil {
			t.Fatalf("decode chunk: %v", err)
		}
		if chunk.StreamID != "s1" || !bytes.Equal(chunk.Chunk, payload) {
			t.Errorf("relayed chunk = %+v, want s1 with original bytes", chunk)
		}
	}

	// Ending the stream notifies the viewers exactly once each. Bob's
	// next frame being end-stream also proves carol's join never fanned
	// out to him.
	a.send(domain.EventEndStream, &domain.EndStreamPayload{
		RoomID: room, StreamID: "s1", DisplayName: "alice",
	})
	for _, viewer := range []*participant{b, c} {
		var ended domain.EndStreamPayload
		if err := viewer.expect(domain.EventEndStream).DecodePayload(&ended); err != nil {
			t.Fatalf("decode end-stream: %v", err)
		}
		if ended.StreamID != "s1" {
			t.Errorf("end-stream = %+v, want s1", ended)
		}
		viewer.expect(domain.EventViewerCount)
	}
	a.expect(domain.EventViewerCount)

	// A second end-stream has nothing to end.
	a.send(domain.EventEndStream, &domain.EndStreamPayload{RoomID: room, StreamID: "s1"})
	var errPayload domain.ErrorPayload
	if err := a.expect(domain.EventError).DecodePayload(&errPayload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errPayload.Code != domain.ErrCodeNotStreaming {
		t.Errorf("error code = %q, want %q", errPayload.Code, domain.ErrCodeNotStreaming)
	}
}

func TestChunksPreserveOrderPerViewer(t *testing.T) {
	url := newTestServer(t)

	a := dial(t, url)
	a.join("r1", "alice")
	a.expect(domain.EventActiveStreams)

	b := dial(t, url)
	b.join("r1", "bob")
	b.expect(domain.EventActiveStreams)

	a.send(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID: "r1", StreamID: "s1", DisplayName: "alice",
	})
	b.expect(domain.EventStartStream)
	b.expect(domain.EventViewerCount)
	a.expect(domain.EventViewerCount)

	const n = 50
	for i := 0; i < n; i++ {
		a.send(domain.EventStreamChunk, &domain.StreamChunkPayload{
			RoomID: "r1", StreamID: "s1", Chunk: []byte{byte(i)},
		})
	}
	for i := 0; i < n; i++ {
		var chunk domain.StreamChunkPayload
		if err := b.expect(domain.EventStreamChunk).DecodePayload(&chunk); err != nil {
			t.Fatalf("decode chunk %d: %v", i, err)
		}
		if len(chunk.Chunk) != 1 || chunk.Chunk[0] != byte(i) {
			t.Fatalf("chunk %d carries %v, want [%d]", i, chunk.Chunk, i)
		}
	}
}

func TestDisconnectEndsOwnedStreams(t *testing.T) {
	url := newTestServer(t)

	a := dial(t, url)
	a.join("r1", "alice")
	a.expect(domain.EventActiveStreams)

	b := dial(t, url)
	b.join("r1", "bob")
	b.expect(domain.EventActiveStreams)

	a.send(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID: "r1", StreamID: "s1", DisplayName: "alice",
	})
	b.expect(domain.EventStartStream)
	b.expect(domain.EventViewerCount)
	a.expect(domain.EventViewerCount)

	// Connection loss is an implicit end-stream.
	a.ws.Close()

	var ended domain.EndStreamPayload
	if err := b.expect(domain.EventEndStream).DecodePayload(&ended); err != nil {
		t.Fatalf("decode end-stream: %v", err)
	}
	if ended.StreamID != "s1" {
		t.Errorf("end-stream = %+v, want s1", ended)
	}

	var count domain.ViewerCountPayload
	if err := b.expect(domain.EventViewerCount).DecodePayload(&count); err != nil {
		t.Fatalf("decode viewer-count: %v", err)
	}
	if count.Viewers != 1 {
		t.Errorf("occupancy after disconnect = %d, want 1", count.Viewers)
	}
}

func TestStreamRestartEndsDisplacedStream(t *testing.T) {
	url := newTestServer(t)

	a := dial(t, url)
	a.join("r1", "alice")
	a.expect(domain.EventActiveStreams)

	b := dial(t, url)
	b.join("r1", "bob")
	b.expect(domain.EventActiveStreams)

	a.send(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID: "r1", StreamID: "s1", DisplayName: "alice",
	})
	b.expect(domain.EventStartStream)
	b.expect(domain.EventViewerCount)
	a.expect(domain.EventViewerCount)

	// Starting again under a new id displaces the old registration; a
	// viewer attached to s1 must hear its end before the new
	// announcement, not wait forever on a dead stream.
	a.send(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID: "r1", StreamID: "s2", DisplayName: "alice",
	})

	var ended domain.EndStreamPayload
	if err := b.expect(domain.EventEndStream).DecodePayload(&ended); err != nil {
		t.Fatalf("decode end-stream: %v", err)
	}
	if ended.StreamID != "s1" {
		t.Errorf("ended streamId = %q, want s1", ended.StreamID)
	}
	b.expect(domain.EventViewerCount)

	var started domain.StartStreamPayload
	if err := b.expect(domain.EventStartStream).DecodePayload(&started); err != nil {
		t.Fatalf("decode start-stream: %v", err)
	}
	if started.StreamID != "s2" {
		t.Errorf("started streamId = %q, want s2", started.StreamID)
	}
}

func TestStreamRequiresRoomMembership(t *testing.T) {
	url := newTestServer(t)

	a := dial(t, url)
	a.send(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID: "r1", StreamID: "s1", DisplayName: "alice",
	})

	var p domain.ErrorPayload
	if err := a.expect(domain.EventError).DecodePayload(&p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p.Code != domain.ErrCodeNotInRoom {
		t.Errorf("error code = %q, want %q", p.Code, domain.ErrCodeNotInRoom)
	}

	a.send(domain.EventStreamChunk, &domain.StreamChunkPayload{
		RoomID: "r1", StreamID: "s1", Chunk: []byte{1},
	})
	if err := a.expect(domain.EventError).DecodePayload(&p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p.Code != domain.ErrCodeNotInRoom {
		t.Errorf("error code = %q, want %q", p.Code, domain.ErrCodeNotInRoom)
	}
}

func TestMalformedFramesAnswerErrorWithoutFanOut(t *testing.T) {
	url := newTestServer(t)

	a := dial(t, url)
	a.join("r1", "alice")
	a.expect(domain.EventActiveStreams)

	b := dial(t, url)
	b.join("r1", "bob")
	b.expect(domain.EventActiveStreams)

	if err := a.ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write raw frame: %v", err)
	}
	var p domain.ErrorPayload
	if err := a.expect(domain.EventError).DecodePayload(&p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p.Code != domain.ErrCodeBadRequest {
		t.Errorf("error code = %q, want %q", p.Code, domain.ErrCodeBadRequest)
	}

	a.send("no-such-event", nil)
	a.expect(domain.EventError)

	// Errors stay on the offending connection.
	b.expectSilence(100 * time.Millisecond)
}

func TestRejoinMovesConnectionBetweenRooms(t *testing.T) {
	url := newTestServer(t)

	a := dial(t, url)
	a.join("r1", "alice")
	a.expect(domain.EventActiveStreams)

	b := dial(t, url)
	b.join("r1", "bob")
	b.expect(domain.EventActiveStreams)

	a.send(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID: "r1", StreamID: "s1", DisplayName: "alice",
	})
	b.expect(domain.EventStartStream)
	b.expect(domain.EventViewerCount)
	a.expect(domain.EventViewerCount)

	// Hopping rooms implicitly ends the stream in the old room.
	a.join("r2", "alice")
	b.expect(domain.EventEndStream)
	b.expect(domain.EventViewerCount)
	a.expect(domain.EventActiveStreams)

	// Chunks for the old room are rejected now.
	a.send(domain.EventStreamChunk, &domain.StreamChunkPayload{
		RoomID: "r1", StreamID: "s1", Chunk: []byte{1},
	})
	var p domain.ErrorPayload
	if err := a.expect(domain.EventError).DecodePayload(&p); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if p.Code != domain.ErrCodeNotInRoom {
		t.Errorf("error code = %q, want %q", p.Code, domain.ErrCodeNotInRoom)
	}
}
