package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// Tracker counts scope checks per user in fixed windows.
// Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	limits  Config
	windows map[string]*window
	now     func() time.Time
}

// NewTracker creates a tracker enforcing limits.
func NewTracker(limits Config) *Tracker {
	return &Tracker{
		limits:  limits,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// SetLimits replaces the limits. Counts in open windows are kept.
func (t *Tracker) SetLimits(limits Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = limits
}

// Allow records a scope check for userID unless that would exceed the
// user's limit. An exceeded result is not counted.
func (t *Tracker) Allow(userID string) CheckResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit, ok := t.limits.For(userID)
	if !ok {
		return CheckResult{}
	}

	now := t.now()
	w := t.snapshot(userID, limit.Window, now)
	result := Check(w.count, limit)
	if !result.Exceeded {
		w.count++
		return CheckResult{}
	}
	result.UserID = userID
	result.RetryAfter = w.start.Add(limit.Window).Sub(now)
	return result
}

// snapshot returns the user's window, starting a new one when it expired.
func (t *Tracker) snapshot(userID string, length time.Duration, now time.Time) *window {
	w := t.windows[userID]
	if w == nil {
		w = &window{start: now}
		t.windows[userID] = w
	}
	if now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
	return w
}
