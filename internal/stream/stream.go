package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published on the activity feed.
const (
	EventAuthGranted  = "auth.granted"
	EventAuthRejected = "auth.rejected"
	EventLookup       = "lookup"
)

// Event describes one authentication or lookup action for live observers.
// Queries and secrets never appear here, only outcome metadata.
type Event struct {
	Type      string    `json:"type"`
	Identity  string    `json:"identity"`
	Role      string    `json:"role,omitempty"`
	Result    string    `json:"result"`
	Matches   int       `json:"matches,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs activity events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
