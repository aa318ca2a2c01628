package service

import (
	"context"

	"github.com/AndlerRL/stream-u-media/internal/domain"
	"github.com/AndlerRL/stream-u-media/internal/hub"
)

// RelayService handles relay signaling operations. All operations are
// fire-and-forget: the relay never acknowledges, buffers, or retries.
type RelayService interface {
	// HandleJoinRoom subscribes the client to a room's broadcast group
	// and notifies active streamers of the new viewer.
	HandleJoinRoom(ctx context.Context, client *hub.Client, p domain.JoinRoomPayload) error

	// HandleStartStream registers the client as a streamer in the room
	// and announces the stream to the other members.
	HandleStartStream(ctx context.Context, client *hub.Client, p domain.StartStreamPayload) error

	// HandleStreamChunk re-emits a media chunk to every other room member.
	HandleStreamChunk(ctx context.Context, client *hub.Client, p domain.StreamChunkPayload) error

	// HandleEndStream removes the client's streamer registration and
	// announces the end of the stream.
	HandleEndStream(ctx context.Context, client *hub.Client, p domain.EndStreamPayload) error

	// HandleDisconnect cleans up after a dropped connection. This is the
	// sole cleanup path for crashed or network-dropped streamers.
	HandleDisconnect(ctx context.Context, client *hub.Client) error
}
