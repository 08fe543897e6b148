package eventapi

import (
	"sync"
)

// eventSink hands events to the registered handler and the active stream.
// emit never blocks on the consumer.
type eventSink struct {
	handler EventHandler
	logger  Logger
	metrics *metrics

	mu     sync.Mutex
	stream *EventStream
}

func newEventSink(handler EventHandler, logger Logger, m *metrics) *eventSink {
	return &eventSink{handler: handler, logger: logger, metrics: m}
}

func (s *eventSink) emit(e Event) {
	s.metrics.eventEmitted(e.Opcode())

	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream != nil {
		stream.push(e)
	}

	if s.handler != nil {
		go s.invoke(e)
	}
}

func (s *eventSink) invoke(e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.handlerError()
			s.logger.Error("Event handler panicked on %s: %v", e.Opcode(), r)
		}
	}()

	if err := s.handler(e); err != nil {
		s.metrics.handlerError()
		s.logger.Error("Error in event handler for %s: %v", e.Opcode(), err)
	}
}

// activate starts a fresh stream and discards the previous one.
func (s *eventSink) activate() *EventStream {
	stream := newEventStream()

	s.mu.Lock()
	prev := s.stream
	s.stream = stream
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return stream
}

// finish lets the active stream drain and end.
func (s *eventSink) finish() {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream != nil {
		stream.finish()
	}
}
