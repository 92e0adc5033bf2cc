package workspace

import (
	"sync"

	"github.com/sakif/js-playground/internal/model"
	"github.com/sakif/js-playground/internal/sandbox"
)

// EventType names what happened in a workspace.
type EventType string

const (
	// EventReload means a new sandbox generation is ready to load.
	EventReload EventType = "reload"
	// EventConsole carries one console entry from the sandbox.
	EventConsole EventType = "console"
	// EventClear means the console log was emptied.
	EventClear EventType = "clear"
)

// Event is pushed to every subscriber of a workspace.
type Event struct {
	Type     EventType           `json:"type"`
	Document *sandbox.Document   `json:"document,omitempty"`
	Problems []string            `json:"problems,omitempty"`
	Console  *model.ConsoleEvent `json:"console,omitempty"`
}

// SubscriberBuffer is how many events a slow subscriber may fall behind
// before further events are dropped for it.
const SubscriberBuffer = 256

type subscribers struct {
	mu     sync.Mutex
	next   int
	chans  map[int]chan Event
	closed bool
}

func (s *subscribers) add() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, SubscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	if s.chans == nil {
		s.chans = make(map[int]chan Event)
	}
	id := s.next
	s.next++
	s.chans[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.chans[id]; ok {
				delete(s.chans, id)
				close(c)
			}
		})
	}
}

// publish never blocks; a full subscriber misses the event.
func (s *subscribers) publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *subscribers) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chans)
}

func (s *subscribers) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.chans {
		close(ch)
		delete(s.chans, id)
	}
}
