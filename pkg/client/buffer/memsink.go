package buffer

import (
	"sync"
	"time"

	"github.com/AndlerRL/stream-u-media/pkg/media"
)

type memChunk struct {
	data  []byte
	start time.Duration
	end   time.Duration
}

// MemSink is a bounded in-memory buffer object. It tracks a buffered
// media range derived from the chunk timeslice and reports
// ErrQuotaExceeded once its byte budget is exhausted, which makes it
// both a usable playback buffer and the quota-pressure reference
// implementation.
type MemSink struct {
	mu       sync.Mutex
	mime     string
	capacity int
	chunkDur time.Duration
	chunks   []memChunk
	size     int
	opened   bool
	ended    bool
}

// NewMemSink creates a sink holding at most capacity bytes of media for
// the given container/codec pair.
func NewMemSink(mime string, capacity int) *MemSink {
	return &MemSink{
		mime:     mime,
		capacity: capacity,
		chunkDur: media.ChunkDuration,
	}
}

func (s *MemSink) Open() <-chan error {
	ch := make(chan error, 1)
	if !media.Supported(s.mime) {
		ch <- ErrUnsupportedType
		return ch
	}
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	ch <- nil
	return ch
}

func (s *MemSink) Append(p []byte) <-chan error {
	ch := make(chan error, 1)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size+len(p) > s.capacity {
		ch <- ErrQuotaExceeded
		return ch
	}

	start := time.Duration(0)
	if n := len(s.chunks); n > 0 {
		start = s.chunks[n-1].end
	}
	data := make([]byte, len(p))
	copy(data, p)
	s.chunks = append(s.chunks, memChunk{data: data, start: start, end: start + s.chunkDur})
	s.size += len(p)
	ch <- nil
	return ch
}

func (s *MemSink) Remove(start, end time.Duration) <-chan error {
	ch := make(chan error, 1)
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.start >= start && c.end <= end {
			s.size -= len(c.data)
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	ch <- nil
	return ch
}

func (s *MemSink) Buffered() (time.Duration, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		return 0, 0
	}
	return s.chunks[0].start, s.chunks[len(s.chunks)-1].end
}

func (s *MemSink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	return nil
}

func (s *MemSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	s.size = 0
	s.opened = false
	return nil
}

// Bytes returns the buffered media concatenated in append order.
func (s *MemSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []byte
	for _, c := range s.chunks {
		out = append(out, c.data...)
	}
	return out
}
