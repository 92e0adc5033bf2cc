package bridge

import (
	"sync"

	"github.com/sakif/js-playground/internal/model"
)

// DefaultCapacity is used when a ConsoleLog is created with a non-positive size.
const DefaultCapacity = 1000

// ConsoleLog is a fixed-size ring of console events. Once full, appending
// drops the oldest entry.
type ConsoleLog struct {
	mu    sync.Mutex
	buf   []model.ConsoleEvent
	start int
	n     int
}

// NewConsoleLog returns an empty log holding at most capacity events.
func NewConsoleLog(capacity int) *ConsoleLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ConsoleLog{buf: make([]model.ConsoleEvent, capacity)}
}

// Append adds e as the newest entry, evicting the oldest when full.
func (l *ConsoleLog) Append(e model.ConsoleEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = e
		l.n++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// Entries returns a copy of the log, oldest first.
func (l *ConsoleLog) Entries() []model.ConsoleEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ConsoleEvent, l.n)
	for i := range l.n {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

// Clear empties the log.
func (l *ConsoleLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.buf)
	l.start, l.n = 0, 0
}

// Len is the number of entries held.
func (l *ConsoleLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Cap is the fixed capacity.
func (l *ConsoleLog) Cap() int { return len(l.buf) }
