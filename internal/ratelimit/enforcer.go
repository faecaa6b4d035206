package ratelimit

import (
	"fmt"
	"time"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded   bool
	UserID     string
	Current    int
	Limit      int
	RetryAfter time.Duration
	Reason     string
}

// Check compares the current count against the limit.
func Check(count int, limit Limit) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d scope checks in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{}
}
