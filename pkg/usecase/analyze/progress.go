package analyze

import (
	"sync"

	"github.com/foodlens/foodlens/pkg/model"
)

// Stream delivers progress events for one analysis to at most one
// consumer. Steps are monotonic: an event whose rank is below the last
// delivered one is dropped, so a consumer never observes the state
// machine moving backwards. The channel closes after a terminal event
// (complete or error). Emit never blocks; if the consumer stopped
// reading and the buffer is full, intermediate events are discarded.
type Stream struct {
	mu       sync.Mutex
	ch       chan model.Event
	lastRank int
	closed   bool
}

// NewStream creates a progress stream.
func NewStream() *Stream {
	return &Stream{
		ch:       make(chan model.Event, 64),
		lastRank: -1,
	}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan model.Event {
	return s.ch
}

// Emit publishes one event, enforcing step ordering.
func (s *Stream) Emit(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	rank := ev.Step.Rank()
	terminal := ev.Step == model.StepComplete || ev.Step == model.StepError

	// Repeats of the current step carry progress updates; regressions
	// are dropped.
	if !terminal && rank < s.lastRank {
		return
	}
	if rank > s.lastRank {
		s.lastRank = rank
	}

	select {
	case s.ch <- ev:
	default:
	}

	if terminal {
		s.closed = true
		close(s.ch)
	}
}
