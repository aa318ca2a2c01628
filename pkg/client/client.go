// Package client is the Go-side participant of the relay protocol: it
// dials the relay websocket, emits the join/start/chunk/end events and
// dispatches incoming room traffic to typed callbacks.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/AndlerRL/stream-u-media/internal/domain"
	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
)

// Handlers holds the callbacks invoked by the read loop, one per relay
// event. Nil entries drop the event. Callbacks run on the read loop
// goroutine in frame order, which is what preserves chunk ordering all
// the way into the buffer manager.
type Handlers struct {
	OnStartStream   func(domain.StartStreamPayload)
	OnStreamChunk   func(domain.StreamChunkPayload)
	OnEndStream     func(domain.EndStreamPayload)
	OnViewerJoined  func(domain.ViewerJoinedPayload)
	OnViewerCount   func(domain.ViewerCountPayload)
	OnActiveStreams func(domain.ActiveStreamsPayload)
	OnError         func(domain.ErrorPayload)
}

// Conn is one participant connection. Writes are serialized with a
// mutex so emit helpers are safe from multiple goroutines.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  sync.Once
}

// Dial connects to the relay websocket endpoint, e.g.
// ws://localhost:8090/ws.
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Run reads frames until the connection drops, dispatching each event
// to its handler. It returns nil on a clean close.
func (c *Conn) Run(h Handlers) error {
	l := pkglog.L()
	for {
		var env domain.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		if err := c.dispatch(&env, h); err != nil {
			l.Warn().Err(err).Str("event", env.Event).Msg("dropping undecodable frame")
		}
	}
}

func (c *Conn) dispatch(env *domain.Envelope, h Handlers) error {
	switch env.Event {
	case domain.EventStartStream:
		var p domain.StartStreamPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if h.OnStartStream != nil {
			h.OnStartStream(p)
		}
	case domain.EventStreamChunk:
		var p domain.StreamChunkPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if h.OnStreamChunk != nil {
			h.OnStreamChunk(p)
		}
	case domain.EventEndStream:
		var p domain.EndStreamPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if h.OnEndStream != nil {
			h.OnEndStream(p)
		}
	case domain.EventViewerJoined:
		var p domain.ViewerJoinedPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if h.OnViewerJoined != nil {
			h.OnViewerJoined(p)
		}
	case domain.EventViewerCount:
		var p domain.ViewerCountPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if h.OnViewerCount != nil {
			h.OnViewerCount(p)
		}
	case domain.EventActiveStreams:
		var p domain.ActiveStreamsPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if h.OnActiveStreams != nil {
			h.OnActiveStreams(p)
		}
	case domain.EventError:
		var p domain.ErrorPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if h.OnError != nil {
			h.OnError(p)
		}
	default:
		l := pkglog.L()
		l.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
	return nil
}

// JoinRoom subscribes this connection to a room.
func (c *Conn) JoinRoom(roomID, displayName string) error {
	return c.emit(domain.EventJoinRoom, &domain.JoinRoomPayload{
		RoomID:      roomID,
		DisplayName: displayName,
	})
}

// StartStream announces a new stream owned by this connection.
func (c *Conn) StartStream(roomID, streamID, displayName string) error {
	return c.emit(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID:      roomID,
		StreamID:    streamID,
		DisplayName: displayName,
	})
}

// SendChunk relays one binary media chunk for the connection's stream.
func (c *Conn) SendChunk(roomID, streamID, displayName string, chunk []byte) error {
	return c.emit(domain.EventStreamChunk, &domain.StreamChunkPayload{
		RoomID:      roomID,
		StreamID:    streamID,
		DisplayName: displayName,
		Chunk:       chunk,
	})
}

// EndStream announces the end of this connection's stream.
func (c *Conn) EndStream(roomID, streamID, displayName string) error {
	return c.emit(domain.EventEndStream, &domain.EndStreamPayload{
		RoomID:      roomID,
		StreamID:    streamID,
		DisplayName: displayName,
	})
}

func (c *Conn) emit(event string, payload interface{}) error {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (c *Conn) Close() error {
	var err error
	c.closed.Do(func() {
		c.writeMu.Lock()
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
