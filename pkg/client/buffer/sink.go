// Package buffer reassembles a single stream's chunk sequence into an
// append-only media buffer for playback. The manager serializes appends:
// the underlying buffer accepts exactly one in-flight operation at a
// time, and chunks must land in the order they were enqueued.
package buffer

import (
	"errors"
	"time"
)

// ErrQuotaExceeded is returned by a Sink append under capacity pressure.
// It is the only recoverable append failure: the manager evicts the
// oldest buffered range and retries the same chunk once.
var ErrQuotaExceeded = errors.New("buffer: quota exceeded")

// ErrUnsupportedType is returned by Open when the sink cannot handle the
// negotiated container/codec pair.
var ErrUnsupportedType = errors.New("buffer: unsupported container/codec pair")

// Sink is the append-only buffer object the manager drives. Every
// mutating operation is asynchronous and single-slot: the returned
// channel delivers exactly one result, and the caller must not start
// another operation until it arrives. Concurrent appends on the same
// sink corrupt playback.
type Sink interface {
	// Open prepares the media pipeline. No data may be appended before
	// the returned channel delivers a nil result.
	Open() <-chan error

	// Append starts an asynchronous append of one chunk.
	Append(p []byte) <-chan error

	// Remove evicts the buffered range [start, end).
	Remove(start, end time.Duration) <-chan error

	// Buffered reports the currently buffered media range.
	Buffered() (start, end time.Duration)

	// End signals end of stream and flushes so playback can finish
	// cleanly rather than stalling.
	End() error

	// Close releases the sink's resources. Safe to call in any state.
	Close() error
}
