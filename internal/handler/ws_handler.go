package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AndlerRL/stream-u-media/internal/domain"
	"github.com/AndlerRL/stream-u-media/internal/hub"
	"github.com/AndlerRL/stream-u-media/internal/service"
	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub     *hub.Hub
	service service.RelayService
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, svc service.RelayService) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
	}
}

// HandleWebSocket handles WebSocket upgrade and message routing.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.L()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	client := &hub.Client{
		ID:      clientID,
		Hub:     h.hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Session: domain.NewSession(clientID),
	}

	// Clean up streamer registrations on connection loss. This is the
	// only cleanup path for crashed streamers; there is no heartbeat
	// beyond the transport's own ping/pong.
	client.SetDisconnectHandler(func(c *hub.Client) {
		ctx := context.Background()
		if err := h.service.HandleDisconnect(ctx, c); err != nil {
			l.Error().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("disconnect handler error")
		}
	})

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

// handleMessage decodes the envelope at the transport boundary and
// dispatches the typed payload. A decode failure answers an error event
// on this connection only; it never affects other rooms or connections.
func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	l := pkglog.L()

	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		client.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := context.Background()

	switch env.Event {
	case domain.EventJoinRoom:
		var p domain.JoinRoomPayload
		if err := env.DecodePayload(&p); err != nil {
			client.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "Invalid join-room payload"))
			return
		}
		if err := h.service.HandleJoinRoom(ctx, client, p); err != nil {
			l.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("join room failed")
		}

	case domain.EventStartStream:
		var p domain.StartStreamPayload
		if err := env.DecodePayload(&p); err != nil {
			client.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "Invalid start-stream payload"))
			return
		}
		if err := h.service.HandleStartStream(ctx, client, p); err != nil {
			l.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("start stream failed")
		}

	case domain.EventStreamChunk:
		var p domain.StreamChunkPayload
		if err := env.DecodePayload(&p); err != nil {
			client.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "Invalid stream-chunk payload"))
			return
		}
		if err := h.service.HandleStreamChunk(ctx, client, p); err != nil {
			l.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("stream chunk failed")
		}

	case domain.EventEndStream:
		var p domain.EndStreamPayload
		if err := env.DecodePayload(&p); err != nil {
			client.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "Invalid end-stream payload"))
			return
		}
		if err := h.service.HandleEndStream(ctx, client, p); err != nil {
			l.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("end stream failed")
		}

	default:
		client.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "Unknown event"))
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
}
