package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock serves a controlled, manually advanced time. Safe for
// concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-06-15 14:30:45 UTC, the
// reference instant the suite pins scheduler and timestamp behavior to.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC))
}

// Now returns the clock's current instant.
func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d without any real waiting.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator yields deterministic attempt IDs ("id-1", "id-2", ...)
// so tests can predict the records and directories an attempt produces.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

// NewStubIDGenerator starts a fresh ID sequence.
func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

// New returns the next ID in the sequence.
func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("id-%d", g.counter)
}
