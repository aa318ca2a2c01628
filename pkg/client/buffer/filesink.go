package buffer

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/AndlerRL/stream-u-media/pkg/media"
)

// FileSink writes the reassembled stream to a local file in append
// order. Buffered-range accounting mirrors MemSink, but Remove only
// trims the bookkeeping: data already flushed to disk stays there, since
// the file doubles as the viewer's local recording.
type FileSink struct {
	mu       sync.Mutex
	mime     string
	path     string
	f        *os.File
	chunkDur time.Duration
	start    time.Duration
	end      time.Duration
}

// NewFileSink creates a sink writing to path.
func NewFileSink(mime, path string) *FileSink {
	return &FileSink{
		mime:     mime,
		path:     path,
		chunkDur: media.ChunkDuration,
	}
}

func (s *FileSink) Open() <-chan error {
	ch := make(chan error, 1)
	if !media.Supported(s.mime) {
		ch <- ErrUnsupportedType
		return ch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Create(s.path)
	if err != nil {
		ch <- fmt.Errorf("failed to create %s: %w", s.path, err)
		return ch
	}
	s.f = f
	ch <- nil
	return ch
}

func (s *FileSink) Append(p []byte) <-chan error {
	ch := make(chan error, 1)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		ch <- fmt.Errorf("sink %s is not open", s.path)
		return ch
	}
	if _, err := s.f.Write(p); err != nil {
		ch <- fmt.Errorf("failed to write chunk: %w", err)
		return ch
	}
	s.end += s.chunkDur
	ch <- nil
	return ch
}

func (s *FileSink) Remove(start, end time.Duration) <-chan error {
	ch := make(chan error, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if end > s.start {
		s.start = end
	}
	ch <- nil
	return ch
}

func (s *FileSink) Buffered() (time.Duration, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start, s.end
}

func (s *FileSink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	return s.f.Sync()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Path returns the output file path.
func (s *FileSink) Path() string {
	return s.path
}
