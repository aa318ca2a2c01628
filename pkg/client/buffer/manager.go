package buffer

import (
	"errors"
	"time"

	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
)

// State of the buffer manager for the current attachment.
type State int

const (
	// StateIdle: no buffer object exists.
	StateIdle State = iota
	// StateInitializing: sink created, waiting for its open signal.
	// Doubles as the re-entrancy guard: attaches and enqueues arriving
	// here are queued behind the open, never raced against it.
	StateInitializing
	// StateReady: the append slot is free; a chunk may be appended.
	StateReady
	// StateAppending: an append is in flight.
	StateAppending
	// StateDraining: quota pressure; evicting the oldest buffered range
	// before retrying the head chunk.
	StateDraining
	// StateEnded: stream end signaled; no more chunks accepted.
	StateEnded
	// StateError: unrecoverable failure; re-attach to recover.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateAppending:
		return "appending"
	case StateDraining:
		return "draining"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// keepWindow is how much trailing buffered media survives a quota
// eviction: everything older than (end − keepWindow) is removed.
const keepWindow = 10 * time.Second

// Event is a state-change notification surfaced to the UI layer.
type Event struct {
	StreamID string
	State    State
	Err      error
}

type cmdKind int

const (
	cmdAttach cmdKind = iota
	cmdEnqueue
	cmdEnd
	cmdState
)

type command struct {
	kind     cmdKind
	streamID string
	sink     Sink
	chunk    []byte
	stateCh  chan Event
}

type opKind int

const (
	opNone opKind = iota
	opOpen
	opAppend
	opRemove
)

// attachment is the per-stream state: one sink, one queue, one in-flight
// operation. Exclusively owned by the manager goroutine.
type attachment struct {
	streamID string
	sink     Sink
	state    State
	queue    [][]byte

	pending   <-chan error
	pendingOp opKind
	head      []byte // chunk whose append is in flight, kept for quota retry
	drained   bool   // an eviction already ran for the head chunk
	endQueued bool   // End arrived while an operation was in flight
}

// Manager owns the buffer state machine for one viewer. All state lives
// in the run goroutine; the exported methods only post commands, so no
// call blocks on the media pipeline and no handle is shared across
// callbacks.
type Manager struct {
	cmds   chan command
	events chan Event
	done   chan struct{}
}

// NewManager creates a manager and starts its event loop.
func NewManager() *Manager {
	m := &Manager{
		cmds:   make(chan command, 64),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

// Events delivers state-change notifications. The channel is never
// closed while the manager runs; slow consumers lose notifications
// rather than stalling the state machine.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Attach switches the manager to a new stream. The previous sink is
// fully released (after its in-flight operation, if any, completes)
// before the new one is opened; queued chunks for the previous stream
// are discarded.
func (m *Manager) Attach(streamID string, sink Sink) {
	m.post(command{kind: cmdAttach, streamID: streamID, sink: sink})
}

// Enqueue adds a chunk to the pending queue. Chunks are appended in
// exactly the order enqueued, one at a time.
func (m *Manager) Enqueue(chunk []byte) {
	m.post(command{kind: cmdEnqueue, chunk: chunk})
}

// End signals the end of the current stream. The queue is dropped and
// the sink is flushed once any in-flight append completes.
func (m *Manager) End() {
	m.post(command{kind: cmdEnd})
}

// Current returns the stream id and state of the active attachment.
func (m *Manager) Current() (string, State) {
	ch := make(chan Event, 1)
	select {
	case m.cmds <- command{kind: cmdState, stateCh: ch}:
	case <-m.done:
		return "", StateIdle
	}
	select {
	case ev := <-ch:
		return ev.StreamID, ev.State
	case <-m.done:
		return "", StateIdle
	}
}

// Close shuts the manager down and releases the current sink.
func (m *Manager) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Manager) post(cmd command) {
	select {
	case m.cmds <- cmd:
	case <-m.done:
	}
}

func (m *Manager) run() {
	l := pkglog.L()

	var att *attachment
	var nextAttach *command // attach deferred behind an in-flight op

	for {
		var pending <-chan error
		if att != nil {
			pending = att.pending
		}

		select {
		case <-m.done:
			if att != nil && att.sink != nil {
				att.sink.Close()
			}
			return

		case cmd := <-m.cmds:
			switch cmd.kind {
			case cmdAttach:
				if att != nil && att.pending != nil {
					// Never interrupt an in-flight operation; the switch
					// happens on its completion. A newer attach replaces
					// an older deferred one.
					c := cmd
					nextAttach = &c
					continue
				}
				att = m.beginAttach(att, cmd.streamID, cmd.sink)

			case cmdEnqueue:
				if att == nil {
					continue
				}
				switch att.state {
				case StateEnded, StateError:
					// No chunks accepted past end or failure.
				default:
					att.queue = append(att.queue, cmd.chunk)
					if att.state == StateReady {
						m.startNextAppend(att)
					}
				}

			case cmdEnd:
				if att == nil {
					continue
				}
				att.queue = nil
				if att.pending != nil {
					att.endQueued = true
					continue
				}
				m.finishEnd(att)

			case cmdState:
				ev := Event{State: StateIdle}
				if att != nil {
					ev = Event{StreamID: att.streamID, State: att.state}
				}
				cmd.stateCh <- ev
			}

		case err := <-pending:
			att.pending = nil
			op := att.pendingOp
			att.pendingOp = opNone

			// A deferred attach wins over whatever the completion would
			// have done for the old stream.
			if nextAttach != nil {
				cmd := *nextAttach
				nextAttach = nil
				att = m.beginAttach(att, cmd.streamID, cmd.sink)
				continue
			}
			if att.endQueued {
				att.endQueued = false
				m.finishEnd(att)
				continue
			}

			switch op {
			case opOpen:
				if err != nil {
					m.fail(att, err)
					continue
				}
				att.state = StateReady
				m.emit(att, nil)
				if len(att.queue) > 0 {
					m.startNextAppend(att)
				}

			case opAppend:
				switch {
				case err == nil:
					att.head = nil
					att.drained = false
					att.state = StateReady
					if len(att.queue) > 0 {
						m.startNextAppend(att)
					}
				case errors.Is(err, ErrQuotaExceeded) && !att.drained:
					// One eviction per occurrence: drop everything older
					// than the trailing window, then retry the same chunk.
					att.state = StateDraining
					att.drained = true
					m.emit(att, nil)
					start, end := att.sink.Buffered()
					evictEnd := end - keepWindow
					if evictEnd < start {
						evictEnd = start
					}
					att.pending = att.sink.Remove(start, evictEnd)
					att.pendingOp = opRemove
				default:
					m.fail(att, err)
				}

			case opRemove:
				if err != nil {
					m.fail(att, err)
					continue
				}
				// Retry the head chunk, not its successor.
				att.state = StateAppending
				att.pending = att.sink.Append(att.head)
				att.pendingOp = opAppend

			default:
				l.Warn().Str(pkglog.FieldStreamID, att.streamID).Msg("completion with no operation in flight")
			}
		}
	}
}

// beginAttach releases the previous attachment and opens the new sink.
// The old sink is closed before the new one is created so playback
// resources never leak across a stream switch.
func (m *Manager) beginAttach(prev *attachment, streamID string, sink Sink) *attachment {
	if prev != nil && prev.sink != nil {
		prev.sink.Close()
	}

	att := &attachment{
		streamID: streamID,
		sink:     sink,
		state:    StateInitializing,
	}
	att.pending = sink.Open()
	att.pendingOp = opOpen
	m.emit(att, nil)
	return att
}

func (m *Manager) startNextAppend(att *attachment) {
	att.head = att.queue[0]
	att.queue = att.queue[1:]
	att.drained = false
	att.state = StateAppending
	att.pending = att.sink.Append(att.head)
	att.pendingOp = opAppend
}

func (m *Manager) finishEnd(att *attachment) {
	if err := att.sink.End(); err != nil {
		l := pkglog.L()
		l.Error().Err(err).Str(pkglog.FieldStreamID, att.streamID).Msg("failed to flush sink")
	}
	att.state = StateEnded
	att.head = nil
	m.emit(att, nil)
}

func (m *Manager) fail(att *attachment, err error) {
	l := pkglog.L()
	l.Error().Err(err).Str(pkglog.FieldStreamID, att.streamID).Msg("buffer append failed")
	att.state = StateError
	att.queue = nil
	att.head = nil
	m.emit(att, err)
}

// emit surfaces a state change without ever blocking the state machine.
func (m *Manager) emit(att *attachment, err error) {
	select {
	case m.events <- Event{StreamID: att.streamID, State: att.state, Err: err}:
	default:
	}
}
