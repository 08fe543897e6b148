package eventapi

import (
	"context"
	"iter"
	"sync"
)

// EventStream is an unbounded queue of events fed by a Client. Obtain one
// with Client.Stream; a later call to Client.Stream ends this one and
// discards whatever it still holds.
type EventStream struct {
	mu        sync.Mutex
	queue     []Event
	finished  bool // drain the queue, then report ErrStreamClosed
	discarded bool // report ErrStreamClosed immediately

	notify   chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

func newEventStream() *EventStream {
	return &EventStream{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push enqueues e without blocking.
func (s *EventStream) push(e Event) {
	s.mu.Lock()
	if s.finished || s.discarded {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the stream ends or ctx is done.
func (s *EventStream) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if s.discarded {
			s.mu.Unlock()
			return nil, ErrStreamClosed
		}
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return e, nil
		}
		if s.finished {
			s.mu.Unlock()
			return nil, ErrStreamClosed
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// All returns a sequence over the stream. It stops when the stream ends or
// ctx is done.
func (s *EventStream) All(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			e, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Len returns the number of queued events.
func (s *EventStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close ends the stream and drops queued events.
func (s *EventStream) Close() {
	s.mu.Lock()
	s.discarded = true
	s.queue = nil
	s.mu.Unlock()
	s.wake()
}

// finish ends the stream once the queued events have been read.
func (s *EventStream) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.wake()
}

func (s *EventStream) wake() {
	s.doneOnce.Do(func() { close(s.done) })
}
