// Package stopwatch measures level play time with pause support.
package stopwatch

import (
	"fmt"
	"sync"
	"time"
)

// Stopwatch measures elapsed play time. Time spent paused is excluded.
type Stopwatch struct {
	mu          sync.Mutex
	now         func() time.Time
	started     bool
	startedAt   time.Time
	paused      bool
	pausedAt    time.Time
	pausedTotal time.Duration
	stopped     bool
	final       time.Duration
}

// New creates a Stopwatch using the wall clock. It does not start until Start is called.
func New() *Stopwatch {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Stopwatch that reads time from now.
func NewWithClock(now func() time.Time) *Stopwatch {
	return &Stopwatch{now: now}
}

// Start resets and starts the stopwatch.
func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = true
	s.startedAt = s.now()
	s.paused = false
	s.pausedTotal = 0
	s.stopped = false
	s.final = 0
}

// TogglePause pauses a running stopwatch or resumes a paused one and
// returns the new paused state. It has no effect before Start or after Stop.
func (s *Stopwatch) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return s.paused
	}
	if s.paused {
		s.pausedTotal += s.now().Sub(s.pausedAt)
		s.paused = false
	} else {
		s.pausedAt = s.now()
		s.paused = true
	}
	return s.paused
}

// Paused reports whether the stopwatch is paused.
func (s *Stopwatch) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Running reports whether the stopwatch has been started and not stopped.
func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// Elapsed returns the play time so far.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed()
}

func (s *Stopwatch) elapsed() time.Duration {
	switch {
	case !s.started:
		return 0
	case s.stopped:
		return s.final
	}
	end := s.now()
	if s.paused {
		end = s.pausedAt
	}
	return end.Sub(s.startedAt) - s.pausedTotal
}

// Seconds returns the elapsed play time in whole seconds.
func (s *Stopwatch) Seconds() int {
	return int(s.Elapsed() / time.Second)
}

// Stop freezes the stopwatch and returns the final time in whole seconds.
// Calling Stop again returns the same value.
func (s *Stopwatch) Stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started && !s.stopped {
		s.final = s.elapsed()
		s.stopped = true
		s.paused = false
	}
	return int(s.final / time.Second)
}

// FormatTime formats seconds as MM:SS.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
