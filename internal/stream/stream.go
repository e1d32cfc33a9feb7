package stream

import (
	"sync"

	"phasegate.org/internal/access"
)

const subscriberBuffer = 16

// Stream fans access decisions out to all active subscribers (SSE clients).
// Slow subscribers drop events rather than blocking the evaluator.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan access.AccessLog
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan access.AccessLog)}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called when the client disconnects.
func (s *Stream) Subscribe() (<-chan access.AccessLog, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	ch := make(chan access.AccessLog, subscriberBuffer)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers one decision to every subscriber with room in its buffer.
func (s *Stream) Publish(e access.AccessLog) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// subscriber is lagging, skip
		}
	}
}

// Subscribers returns the number of active subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
