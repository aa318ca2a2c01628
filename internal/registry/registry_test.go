package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/AndlerRL/stream-u-media/internal/domain"
)

func TestAddAndRemove(t *testing.T) {
	r := New()

	r.Add(domain.Streamer{ConnectionID: "c1", RoomID: "evt-42", StreamID: "s1", DisplayName: "alice"})

	streamers := r.Streamers("evt-42")
	if len(streamers) != 1 {
		t.Fatalf("Streamers = %d entries, want 1", len(streamers))
	}
	if streamers[0].StreamID != "s1" {
		t.Errorf("streamId = %q, want s1", streamers[0].StreamID)
	}

	s, ok := r.Remove("evt-42", "c1")
	if !ok {
		t.Fatal("Remove returned false for registered streamer")
	}
	if s.StreamID != "s1" {
		t.Errorf("removed streamId = %q, want s1", s.StreamID)
	}
}

func TestAddReplaceReturnsDisplacedStreamer(t *testing.T) {
	r := New()

	if _, replaced := r.Add(domain.Streamer{ConnectionID: "c1", RoomID: "evt-42", StreamID: "s1", DisplayName: "alice"}); replaced {
		t.Fatal("first Add reported a replacement")
	}

	prev, replaced := r.Add(domain.Streamer{ConnectionID: "c1", RoomID: "evt-42", StreamID: "s2", DisplayName: "alice"})
	if !replaced {
		t.Fatal("second Add from the same connection did not report a replacement")
	}
	if prev.StreamID != "s1" {
		t.Errorf("displaced streamId = %q, want s1", prev.StreamID)
	}

	streamers := r.Streamers("evt-42")
	if len(streamers) != 1 || streamers[0].StreamID != "s2" {
		t.Errorf("Streamers = %v, want single s2 registration", streamers)
	}

	// A room with zero streamers must hold an empty set, never a stale entry.
	if got := r.StreamerCount("evt-42"); got != 0 {
		t.Errorf("StreamerCount after removal = %d, want 0", got)
	}
	if _, ok := r.Remove("evt-42", "c1"); ok {
		t.Error("second Remove returned true, want false")
	}
}

func TestRemoveIsKeyedByConnection(t *testing.T) {
	r := New()
	r.Add(domain.Streamer{ConnectionID: "c1", RoomID: "evt-42", StreamID: "s1"})
	r.Add(domain.Streamer{ConnectionID: "c2", RoomID: "evt-42", StreamID: "s2"})

	// c2 cannot end c1's stream: removal only touches c2's own entry.
	s, ok := r.Remove("evt-42", "c2")
	if !ok || s.StreamID != "s2" {
		t.Fatalf("Remove(c2) = %+v, %v, want s2", s, ok)
	}
	if got := r.StreamerCount("evt-42"); got != 1 {
		t.Errorf("StreamerCount = %d, want 1", got)
	}
	if left := r.Streamers("evt-42"); len(left) != 1 || left[0].StreamID != "s1" {
		t.Errorf("remaining = %+v, want s1", left)
	}
}

func TestConcurrentStreamersPerRoom(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		r.Add(domain.Streamer{
			ConnectionID: fmt.Sprintf("c%d", i),
			RoomID:       "evt-42",
			StreamID:     fmt.Sprintf("s%d", i),
		})
	}
	if got := r.StreamerCount("evt-42"); got != 5 {
		t.Errorf("StreamerCount = %d, want 5", got)
	}
}

func TestRemoveConnectionAcrossRooms(t *testing.T) {
	r := New()
	r.Add(domain.Streamer{ConnectionID: "c1", RoomID: "evt-1", StreamID: "s1"})
	r.Add(domain.Streamer{ConnectionID: "c1", RoomID: "evt-2", StreamID: "s2"})
	r.Add(domain.Streamer{ConnectionID: "c2", RoomID: "evt-1", StreamID: "s3"})

	removed := r.RemoveConnection("c1")
	if len(removed) != 2 {
		t.Fatalf("RemoveConnection removed %d, want 2", len(removed))
	}
	if got := r.StreamerCount("evt-1"); got != 1 {
		t.Errorf("evt-1 count = %d, want 1", got)
	}
	if got := r.StreamerCount("evt-2"); got != 0 {
		t.Errorf("evt-2 count = %d, want 0", got)
	}
}

// Concurrent start/end/disconnect for the same room must be linearized:
// after every goroutine finishes, no removed streamer may survive.
func TestConcurrentMutationLinearized(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			r.Add(domain.Streamer{ConnectionID: conn, RoomID: "evt-42", StreamID: fmt.Sprintf("s%d", i)})
			if i%2 == 0 {
				r.Remove("evt-42", conn)
			} else {
				r.RemoveConnection(conn)
			}
		}(i)
	}
	wg.Wait()

	if got := r.StreamerCount("evt-42"); got != 0 {
		t.Errorf("StreamerCount after churn = %d, want 0", got)
	}
	if got := r.Streamers("evt-42"); got != nil {
		t.Errorf("Streamers after churn = %+v, want nil", got)
	}
}
