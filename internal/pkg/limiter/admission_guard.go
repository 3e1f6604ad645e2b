/*
Package limiter provides connection admission control.

This file implements the AdmissionGuard, a sliding-window request counter keyed by
user identity. Each user may establish at most 100 connections within any rolling
60-second window; the guard prunes expired timestamps lazily on every check and
removes decayed windows with a periodic background sweep to bound memory.
*/
package limiter

import (
	"sync"
	"time"

	"coedit/internal/pkg/logx"
)

const (
	// AdmissionLimit is the maximum number of admitted attempts per user per window.
	AdmissionLimit = 100

	// AdmissionWindow is the length of the rolling window.
	AdmissionWindow = 60 * time.Second

	// admissionSweepInterval is how often decayed windows are removed.
	admissionSweepInterval = 60 * time.Second
)

// AdmissionGuard is a sliding-window connection counter keyed by user id.
// It is a pure admission check with no knowledge of connections or rooms.
type AdmissionGuard struct {
	// mu protects concurrent access to the windows map.
	mu sync.Mutex

	// windows maps a user id to the timestamps of admissions within the window.
	windows map[string][]time.Time

	limit  int
	window time.Duration

	// now is the clock source, replaceable in tests.
	now func() time.Time

	// stop terminates the background sweep goroutine.
	stop chan struct{}

	stopOnce sync.Once
}

// NewAdmissionGuard creates an AdmissionGuard with the given per-window limit and
// window duration, and starts the background sweep goroutine.
func NewAdmissionGuard(limit int, window time.Duration) *AdmissionGuard {
	g := &AdmissionGuard{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go g.sweepLoop()

	return g
}

// Allow reports whether a new connection attempt by userID is admitted.
// Timestamps older than the window are dropped first; if the remaining count has
// reached the limit the attempt is rejected without mutating state, otherwise the
// current timestamp is recorded.
func (g *AdmissionGuard) Allow(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cutoff := now.Add(-g.window)

	recent := g.windows[userID][:0:0]
	for _, ts := range g.windows[userID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= g.limit {
		g.windows[userID] = recent
		return false
	}

	g.windows[userID] = append(recent, now)
	return true
}

// Stop terminates the background sweep goroutine.
func (g *AdmissionGuard) Stop() {
	g.stopOnce.Do(func() {
		close(g.stop)
	})
}

// sweepLoop periodically removes windows whose entries have all expired.
func (g *AdmissionGuard) sweepLoop() {
	ticker := time.NewTicker(admissionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := g.sweep()
			if removed > 0 {
				logx.Info("Admission guard sweep removed decayed windows.", "removed", removed)
			}
		case <-g.stop:
			return
		}
	}
}

// sweep deletes user windows with no timestamps inside the rolling window and
// returns the number of windows removed.
func (g *AdmissionGuard) sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.window)
	removed := 0

	for userID, stamps := range g.windows {
		alive := false
		for _, ts := range stamps {
			if ts.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(g.windows, userID)
			removed++
		}
	}

	return removed
}
