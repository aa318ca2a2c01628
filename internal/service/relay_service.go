package service

import (
	"context"

	"github.com/AndlerRL/stream-u-media/internal/domain"
	"github.com/AndlerRL/stream-u-media/internal/hub"
	"github.com/AndlerRL/stream-u-media/internal/kafka"
	"github.com/AndlerRL/stream-u-media/internal/registry"
	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
	"github.com/AndlerRL/stream-u-media/pkg/pubsub"
)

type relayService struct {
	hub      *hub.Hub
	registry *registry.Registry

	// Both side channels are optional and non-critical: a nil producer or
	// publisher disables them, and their failures are logged, never
	// propagated to the wire path.
	producer  kafka.StreamEventProducer
	publisher pubsub.Publisher
}

// NewRelayService creates a new RelayService. The registry is constructed
// by the caller and passed by handle; the service holds no hidden state.
func NewRelayService(
	h *hub.Hub,
	reg *registry.Registry,
	producer kafka.StreamEventProducer,
	publisher pubsub.Publisher,
) RelayService {
	return &relayService{
		hub:       h,
		registry:  reg,
		producer:  producer,
		publisher: publisher,
	}
}

func (s *relayService) HandleJoinRoom(ctx context.Context, c *hub.Client, p domain.JoinRoomPayload) error {
	if p.RoomID == "" {
		return c.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "roomId is required"))
	}

	// Leave current room if any; one room per connection.
	if current := c.Session.CurrentRoom(); current != "" && current != p.RoomID {
		s.hub.LeaveRoom(c, current)
		s.endStreamsFor(ctx, c, current, kafka.ReasonExplicit)
		c.Session.LeaveRoom()
	}

	s.hub.JoinRoom(c, p.RoomID)
	c.Session.JoinRoom(p.RoomID, p.DisplayName)

	viewers := s.hub.RoomLen(p.RoomID)

	// Notify every active streamer of the new viewer and the updated
	// occupancy. A room with no streamers makes this a no-op.
	streamers := s.registry.Streamers(p.RoomID)
	if len(streamers) > 0 {
		joined, err := domain.NewEnvelope(domain.EventViewerJoined, &domain.ViewerJoinedPayload{
			RoomID:   p.RoomID,
			Viewers:  viewers,
			Username: p.DisplayName,
		})
		if err != nil {
			return err
		}
		for _, st := range streamers {
			if st.ConnectionID == c.ID {
				continue
			}
			s.hub.SendToClient(st.ConnectionID, joined)
		}
	}

	// Send the joiner a snapshot of already-running streams so a late
	// joiner can attach without waiting for the next start-stream.
	infos := make([]domain.StreamInfo, 0, len(streamers))
	for _, st := range streamers {
		infos = append(infos, st.Info())
	}
	snapshot, err := domain.NewEnvelope(domain.EventActiveStreams, &domain.ActiveStreamsPayload{
		RoomID:  p.RoomID,
		Streams: infos,
	})
	if err != nil {
		return err
	}
	if err := c.SendMessage(snapshot); err != nil {
		return err
	}

	s.publishRoomUpdate(ctx, p.RoomID)
	return nil
}

func (s *relayService) HandleStartStream(ctx context.Context, c *hub.Client, p domain.StartStreamPayload) error {
	l := pkglog.L()

	if c.Session.CurrentRoom() != p.RoomID {
		return c.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeNotInRoom, "join the room before streaming"))
	}
	if p.StreamID == "" {
		return c.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeBadRequest, "streamId is required"))
	}

	// N concurrent streamers per room are admitted; no mutual exclusion.
	// A connection holds one stream per room, so a restart under a new id
	// displaces the old registration; viewers attached to the old id must
	// hear its end before the new announcement.
	prev, replaced := s.registry.Add(domain.Streamer{
		ConnectionID: c.ID,
		RoomID:       p.RoomID,
		StreamID:     p.StreamID,
		DisplayName:  p.DisplayName,
	})
	if replaced && prev.StreamID != p.StreamID {
		s.announceStreamEnded(ctx, prev, kafka.ReasonExplicit)
	}

	started, err := domain.NewEnvelope(domain.EventStartStream, &domain.StartStreamPayload{
		RoomID:      p.RoomID,
		StreamID:    p.StreamID,
		DisplayName: p.DisplayName,
	})
	if err != nil {
		return err
	}
	s.hub.BroadcastToRoom(p.RoomID, started, c.ID)
	s.broadcastViewerCount(p.RoomID)

	if s.producer != nil {
		if err := s.producer.ProduceStreamStarted(ctx, p.RoomID, p.StreamID, p.DisplayName); err != nil {
			l.Error().Err(err).Str(pkglog.FieldRoomID, p.RoomID).Msg("failed to produce stream_started event")
		}
	}
	s.publishStreamLive(ctx, p)
	s.publishRoomUpdate(ctx, p.RoomID)

	l.Info().
		Str(pkglog.FieldRoomID, p.RoomID).
		Str(pkglog.FieldStreamID, p.StreamID).
		Str(pkglog.FieldUsername, p.DisplayName).
		Msg("stream started")
	return nil
}

func (s *relayService) HandleStreamChunk(ctx context.Context, c *hub.Client, p domain.StreamChunkPayload) error {
	if c.Session.CurrentRoom() != p.RoomID {
		return c.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeNotInRoom, "join the room before streaming"))
	}

	// Immediate re-emit, unchanged, to every other room member. No
	// buffering, no acknowledgement, no backpressure: a slow viewer
	// queues in its own transport send buffer, not here.
	env, err := domain.NewEnvelope(domain.EventStreamChunk, &p)
	if err != nil {
		return err
	}
	return s.hub.BroadcastToRoom(p.RoomID, env, c.ID)
}

func (s *relayService) HandleEndStream(ctx context.Context, c *hub.Client, p domain.EndStreamPayload) error {
	// Lookup by connection id: a connection can only end the stream it
	// owns, so a stale or forged streamId in the payload is harmless.
	st, ok := s.registry.Remove(p.RoomID, c.ID)
	if !ok {
		return c.SendMessage(domain.NewErrorEnvelope(domain.ErrCodeNotStreaming, "no active stream for this connection"))
	}

	s.announceStreamEnded(ctx, st, kafka.ReasonExplicit)
	return nil
}

func (s *relayService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	roomID := c.Session.CurrentRoom()
	if roomID != "" {
		// Leave before recomputing so occupancy excludes the dropped
		// connection.
		s.hub.LeaveRoom(c, roomID)
		c.Session.LeaveRoom()
	}

	// Scan all rooms: transport connection loss is an implicit
	// end-stream for every stream the connection owned.
	for _, st := range s.registry.RemoveConnection(c.ID) {
		s.announceStreamEnded(ctx, st, kafka.ReasonDisconnect)
	}

	if roomID != "" {
		s.broadcastViewerCount(roomID)
		s.publishRoomUpdate(ctx, roomID)
	}
	return nil
}

// endStreamsFor ends any stream the client owns in roomID, used when a
// connection hops rooms without an explicit end-stream.
func (s *relayService) endStreamsFor(ctx context.Context, c *hub.Client, roomID, reason string) {
	if st, ok := s.registry.Remove(roomID, c.ID); ok {
		s.announceStreamEnded(ctx, st, reason)
	}
}

func (s *relayService) announceStreamEnded(ctx context.Context, st domain.Streamer, reason string) {
	l := pkglog.L()

	ended, err := domain.NewEnvelope(domain.EventEndStream, &domain.EndStreamPayload{
		RoomID:      st.RoomID,
		StreamID:    st.StreamID,
		DisplayName: st.DisplayName,
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to encode end-stream event")
		return
	}
	s.hub.BroadcastToRoom(st.RoomID, ended, st.ConnectionID)
	s.broadcastViewerCount(st.RoomID)

	if s.producer != nil {
		if err := s.producer.ProduceStreamStopped(ctx, st.RoomID, st.StreamID, reason); err != nil {
			l.Error().Err(err).Str(pkglog.FieldRoomID, st.RoomID).Msg("failed to produce stream_stopped event")
		}
	}
	s.publishStreamEnded(ctx, st, reason)
	s.publishRoomUpdate(ctx, st.RoomID)

	l.Info().
		Str(pkglog.FieldRoomID, st.RoomID).
		Str(pkglog.FieldStreamID, st.StreamID).
		Str("reason", reason).
		Msg("stream ended")
}

// broadcastViewerCount recomputes the room occupancy from the hub's
// current subscriber set and pushes it to every member.
func (s *relayService) broadcastViewerCount(roomID string) {
	count, err := domain.NewEnvelope(domain.EventViewerCount, &domain.ViewerCountPayload{
		RoomID:  roomID,
		Viewers: s.hub.RoomLen(roomID),
	})
	if err != nil {
		return
	}
	s.hub.BroadcastToRoom(roomID, count, "")
}

func (s *relayService) publishRoomUpdate(ctx context.Context, roomID string) {
	if s.publisher == nil {
		return
	}

	streamers := s.registry.Streamers(roomID)
	live := make([]string, 0, len(streamers))
	for _, st := range streamers {
		live = append(live, st.StreamID)
	}

	event, err := pubsub.NewEvent(pubsub.EventRoomUpdate, roomID, &pubsub.RoomUpdatePayload{
		RoomID:      roomID,
		Viewers:     s.hub.RoomLen(roomID),
		LiveStreams: live,
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, pubsub.RoomEventsChannel(roomID), event); err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to publish room update")
	}
}

func (s *relayService) publishStreamLive(ctx context.Context, p domain.StartStreamPayload) {
	if s.publisher == nil {
		return
	}

	event, err := pubsub.NewEvent(pubsub.EventStreamLive, p.RoomID, &pubsub.StreamLivePayload{
		RoomID:      p.RoomID,
		StreamID:    p.StreamID,
		DisplayName: p.DisplayName,
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, pubsub.RoomEventsChannel(p.RoomID), event); err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldRoomID, p.RoomID).Msg("failed to publish stream_live")
	}
}

func (s *relayService) publishStreamEnded(ctx context.Context, st domain.Streamer, reason string) {
	if s.publisher == nil {
		return
	}

	event, err := pubsub.NewEvent(pubsub.EventStreamEnded, st.RoomID, &pubsub.StreamEndedPayload{
		RoomID:   st.RoomID,
		StreamID: st.StreamID,
		Reason:   reason,
	})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, pubsub.RoomEventsChannel(st.RoomID), event); err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldRoomID, st.RoomID).Msg("failed to publish stream_ended")
	}
}
