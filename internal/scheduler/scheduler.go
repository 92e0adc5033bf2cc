// Package scheduler decides when a workspace's preview is rebuilt.
//
// Edits trigger auto runs, which are debounced: each new edit cancels the
// pending timer and arms a fresh one, so a burst of typing produces a single
// run once the editor has been quiet for the delay. A manual run cancels
// whatever is pending and runs immediately in the caller's goroutine.
package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/js-playground/internal/metrics"
)

// DefaultDelay is the quiet period before an auto run fires.
const DefaultDelay = time.Second

// Trigger says why a run was requested.
type Trigger int

const (
	Manual Trigger = iota
	Auto
)

func (t Trigger) String() string {
	switch t {
	case Manual:
		return "manual"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// Timer is the part of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer that calls f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RunFunc performs one run. Calls never overlap.
type RunFunc func(Trigger)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.after = f }
}

// WithMetrics counts runs and superseded timers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the logger; the default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler debounces auto runs and serialises every run.
type Scheduler struct {
	delay   time.Duration
	run     RunFunc
	after   AfterFunc
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	timer   Timer
	seq     uint64 // bumped on every cancel; a firing timer must still match it
	stopped bool

	runMu sync.Mutex
}

// New creates a scheduler that calls run. A non-positive delay uses
// DefaultDelay.
func New(delay time.Duration, run RunFunc, opts ...Option) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	s := &Scheduler{
		delay:  delay,
		run:    run,
		after:  realAfterFunc,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleRun requests a run.
func (s *Scheduler) ScheduleRun(trigger Trigger) {
	if trigger == Manual {
		s.mu.Lock()
		s.cancelLocked()
		s.mu.Unlock()
		s.execute(Manual)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cancelLocked()
	token := s.seq
	s.timer = s.after(s.delay, func() { s.fire(token) })
}

// Pending reports whether an auto run is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Stop cancels any pending run. Later auto requests are ignored; manual
// runs still execute.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	s.seq++
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.metrics.Superseded()
	s.logger.Debug("pending run superseded")
}

func (s *Scheduler) fire(token uint64) {
	s.mu.Lock()
	if token != s.seq || s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.seq++
	s.mu.Unlock()

	s.execute(Auto)
}

func (s *Scheduler) execute(trigger Trigger) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.metrics.Run(trigger.String())
	s.run(trigger)
}
