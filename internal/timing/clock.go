// Package timing owns the time source and the bounded waits of the control loops.
//
// Dead-time, inter-actuator and stagger waits are physical safety margins. They are
// expressed as Budget values spent through a Clock so tests can drive them with a
// Manual clock instead of wall-clock sleeps.
package timing

import (
	"sync"
	"time"
)

// Clock is the time source used by every control loop.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Budget is a named bounded wait.
type Budget struct {
	Name     string
	Duration time.Duration
}

// Spend blocks on c for the budget duration. Zero or negative budgets return immediately.
func (b Budget) Spend(c Clock) {
	if b.Duration <= 0 {
		return
	}
	c.Sleep(b.Duration)
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Manual is a test clock; Sleep advances the current time instead of blocking.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Sleep(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = append(m.sleeps, d)
	if d > 0 {
		m.now = m.now.Add(d)
	}
}

// Advance moves the clock forward without recording a sleep.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Sleeps returns every duration passed to Sleep, in call order.
func (m *Manual) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.sleeps))
	copy(out, m.sleeps)
	return out
}

// ResetSleeps clears the recorded sleep history.
func (m *Manual) ResetSleeps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = nil
}
