package testutil

import (
	"sync"
	"time"
)

// StepClock provides a thread-safe clock for tests that advances by a fixed
// step on every reading.
//
// Passing StepClock.Now where a func() time.Time is expected makes elapsed
// times deterministic: consecutive readings differ by exactly Step.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	n     int64
}

// NewStepClock creates a clock whose first reading is start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start, step: step}
}

// Now returns the next reading.
//
// Monotonic: each call returns the previous reading plus Step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

// Readings returns how many times Now has been called.
func (c *StepClock) Readings() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Step returns the increment between readings.
func (c *StepClock) Step() time.Duration { return c.step }

// Reset rewinds the clock so the next reading is start again.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}
