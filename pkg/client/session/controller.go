// Package session tracks which streams are live in a room and decides
// which one feeds the local playback buffer.
package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/AndlerRL/stream-u-media/internal/domain"
	"github.com/AndlerRL/stream-u-media/pkg/client"
	"github.com/AndlerRL/stream-u-media/pkg/client/buffer"
	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
)

// SinkFactory builds a fresh playback sink for a stream. Each attach
// gets its own sink; the buffer manager releases the previous one.
type SinkFactory func(streamID string) buffer.Sink

// bufferManager is the slice of the buffer manager the controller
// drives.
type bufferManager interface {
	Attach(streamID string, sink buffer.Sink)
	Enqueue(chunk []byte)
	End()
}

// Controller routes room events into the buffer manager. The first
// stream that appears is attached automatically; every other live
// stream is surfaced as an offer the user can switch to. Chunks for
// anything but the attached stream are dropped, so a switch never mixes
// two streams in one buffer.
type Controller struct {
	mu      sync.Mutex
	mgr     bufferManager
	newSink SinkFactory
	offer   func(domain.StreamInfo)

	current string
	known   map[string]domain.StreamInfo
}

// NewController creates a controller. offer may be nil when the caller
// has no interactive surface for switch offers.
func NewController(mgr *buffer.Manager, newSink SinkFactory, offer func(domain.StreamInfo)) *Controller {
	return newController(mgr, newSink, offer)
}

func newController(mgr bufferManager, newSink SinkFactory, offer func(domain.StreamInfo)) *Controller {
	return &Controller{
		mgr:     mgr,
		newSink: newSink,
		offer:   offer,
		known:   make(map[string]domain.StreamInfo),
	}
}

// Handlers wires the controller into a relay connection read loop.
func (c *Controller) Handlers() client.Handlers {
	return client.Handlers{
		OnStartStream:   c.HandleStartStream,
		OnStreamChunk:   c.HandleStreamChunk,
		OnEndStream:     c.HandleEndStream,
		OnActiveStreams: c.HandleActiveStreams,
	}
}

// HandleActiveStreams seeds the live set from the join-time snapshot.
// With nothing attached yet the first snapshot entry wins; the rest
// become offers.
func (c *Controller) HandleActiveStreams(p domain.ActiveStreamsPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, info := range p.Streams {
		c.known[info.StreamID] = info
		if c.current == "" {
			c.attachLocked(info)
			continue
		}
		if info.StreamID != c.current {
			c.offerLocked(info)
		}
	}
}

// HandleStartStream registers a newly announced stream. It auto-attaches
// only when nothing is playing; an already-watching viewer just gets an
// offer.
func (c *Controller) HandleStartStream(p domain.StartStreamPayload) {
	info := domain.StreamInfo{StreamID: p.StreamID, DisplayName: p.DisplayName}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.known[info.StreamID] = info

	if c.current == "" {
		c.attachLocked(info)
		return
	}
	c.offerLocked(info)
}

// HandleStreamChunk forwards a chunk to the buffer manager when it
// belongs to the attached stream.
func (c *Controller) HandleStreamChunk(p domain.StreamChunkPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.StreamID != c.current {
		return
	}
	c.mgr.Enqueue(p.Chunk)
}

// HandleEndStream retires a stream. Ending the attached stream flushes
// the buffer and re-offers whatever is still live, rather than silently
// switching the viewer to a stream they never picked.
func (c *Controller) HandleEndStream(p domain.EndStreamPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.known, p.StreamID)
	if p.StreamID != c.current {
		return
	}

	c.mgr.End()
	c.current = ""

	ids := make([]string, 0, len(c.known))
	for id := range c.known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c.offerLocked(c.known[id])
	}
}

// Switch attaches playback to another live stream.
func (c *Controller) Switch(streamID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.known[streamID]
	if !ok {
		return fmt.Errorf("stream %s is not live", streamID)
	}
	if streamID == c.current {
		return nil
	}
	c.attachLocked(info)
	return nil
}

// Current returns the attached stream id, or "" when nothing plays.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Live returns the ids of all known live streams in sorted order.
func (c *Controller) Live() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.known))
	for id := range c.known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Controller) attachLocked(info domain.StreamInfo) {
	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldStreamID, info.StreamID).
		Str(pkglog.FieldUsername, info.DisplayName).
		Msg("attaching playback")
	c.current = info.StreamID
	c.mgr.Attach(info.StreamID, c.newSink(info.StreamID))
}

func (c *Controller) offerLocked(info domain.StreamInfo) {
	if c.offer == nil {
		return
	}
	c.offer(info)
}
