package limiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newTestGuard builds a guard with an injectable clock and no sweep goroutine.
func newTestGuard(limit int, window time.Duration, clock *fakeClock) *AdmissionGuard {
	return &AdmissionGuard{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     clock.Now,
		stop:    make(chan struct{}),
	}
}

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func Test_Allow_admitsUpToLimit(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1_700_000_000, 0)}
	guard := newTestGuard(AdmissionLimit, AdmissionWindow, clock)

	for i := 0; i < AdmissionLimit; i++ {
		assert.True(t, guard.Allow("u1"), "attempt %d should be admitted", i+1)
		clock.Advance(10 * time.Millisecond)
	}

	assert.False(t, guard.Allow("u1"), "attempt past the limit must be rejected")
}

func Test_Allow_rejectionDoesNotConsumeWindow(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1_700_000_000, 0)}
	guard := newTestGuard(2, time.Minute, clock)

	assert.True(t, guard.Allow("u1"))
	assert.True(t, guard.Allow("u1"))
	assert.False(t, guard.Allow("u1"))
	assert.Len(t, guard.windows["u1"], 2, "rejected attempt must not be recorded")
}

func Test_Allow_windowSlides(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1_700_000_000, 0)}
	guard := newTestGuard(2, time.Minute, clock)

	assert.True(t, guard.Allow("u1"))
	clock.Advance(30 * time.Second)
	assert.True(t, guard.Allow("u1"))
	assert.False(t, guard.Allow("u1"))

	// The first admission falls out of the window; one slot frees up.
	clock.Advance(31 * time.Second)
	assert.True(t, guard.Allow("u1"))
	assert.False(t, guard.Allow("u1"))
}

func Test_Allow_isolatesUsers(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1_700_000_000, 0)}
	guard := newTestGuard(1, time.Minute, clock)

	assert.True(t, guard.Allow("u1"))
	assert.False(t, guard.Allow("u1"))
	assert.True(t, guard.Allow("u2"), "each user has an independent window")
}

func Test_sweep_removesDecayedWindows(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(1_700_000_000, 0)}
	guard := newTestGuard(5, time.Minute, clock)

	guard.Allow("u1")
	guard.Allow("u2")

	clock.Advance(30 * time.Second)
	guard.Allow("u2")

	clock.Advance(45 * time.Second)

	removed := guard.sweep()
	assert.Equal(t, 1, removed)
	assert.NotContains(t, guard.windows, "u1")
	assert.Contains(t, guard.windows, "u2", "window with live entries survives the sweep")
}

func Test_Stop_isIdempotent(t *testing.T) {
	guard := NewAdmissionGuard(AdmissionLimit, AdmissionWindow)
	guard.Stop()
	guard.Stop()
}
