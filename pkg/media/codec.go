// Package media pins down the container/codec pair and chunk framing that
// every relay participant assumes. The pair is negotiated out of band: a
// publisher only ever sends it, and a viewer that cannot decode it must
// refuse to attach instead of guessing.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MIMEType is the negotiated container/codec pair for every stream.
	MIMEType = `video/webm;codecs="vp9,opus"`

	// ChunkDuration is the recorder timeslice: one chunk covers roughly
	// this much media time. Buffered-range accounting on the viewer side
	// is derived from it.
	ChunkDuration = time.Second

	// MaxChunkSize bounds a single chunk payload. Must stay below the
	// websocket message size limit with room for the JSON envelope.
	MaxChunkSize = 1 << 20 // 1 MiB
)

// ErrNotWebM is returned by Probe for input that does not start with an
// EBML header.
var ErrNotWebM = errors.New("media: input is not a WebM/EBML stream")

// ebmlMagic is the EBML header ID that opens every WebM file.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// Supported reports whether this implementation can handle the given
// container/codec pair. Only the negotiated pair is supported.
func Supported(mime string) bool {
	return canonical(mime) == canonical(MIMEType)
}

// Probe checks that head starts a WebM stream. head should contain at
// least the first four bytes of the input.
func Probe(head []byte) error {
	if len(head) < len(ebmlMagic) {
		return fmt.Errorf("media: short read (%d bytes): %w", len(head), ErrNotWebM)
	}
	if !bytes.Equal(head[:len(ebmlMagic)], ebmlMagic) {
		return ErrNotWebM
	}
	return nil
}

// ValidateChunk checks chunk payload bounds.
func ValidateChunk(p []byte) error {
	if len(p) == 0 {
		return errors.New("media: empty chunk")
	}
	if len(p) > MaxChunkSize {
		return fmt.Errorf("media: chunk of %d bytes exceeds limit of %d", len(p), MaxChunkSize)
	}
	return nil
}

func canonical(mime string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(mime)), " ", "")
}
