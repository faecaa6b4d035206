package ratelimit

import "time"

// Wildcard is the Config key whose limit applies to users without their own entry.
const Wildcard = "*"

// Limit caps scope checks for one user within a fixed window.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

// Enabled reports whether the limit constrains anything.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// Config maps user IDs to their limits.
type Config map[string]Limit

// HasLimits returns true if any user has an enabled limit.
func (c Config) HasLimits() bool {
	for _, l := range c {
		if l.Enabled() {
			return true
		}
	}
	return false
}

// For returns the limit for userID, falling back to the wildcard entry.
func (c Config) For(userID string) (Limit, bool) {
	if l, ok := c[userID]; ok && l.Enabled() {
		return l, true
	}
	if l, ok := c[Wildcard]; ok && l.Enabled() {
		return l, true
	}
	return Limit{}, false
}
