package guardian

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable matches any *ProviderUnavailableError via errors.Is.
var ErrProviderUnavailable = errors.New("reasoning provider unavailable")

// ValidationError rejects a request before any provider call or audit write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderUnavailableError means no verdict was obtained: the call timed out,
// failed in transport, was rate limited, or returned an unusable envelope.
// Callers should present a "try again" state, not a scope verdict.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrProviderUnavailable) match.
func (e *ProviderUnavailableError) Is(target error) bool {
	return target == ErrProviderUnavailable
}

// ParseFailure describes why a provider verdict could not be trusted.
// It never reaches callers; it is folded into a fail-closed Decision.
type ParseFailure struct {
	Reason string
}

func (e *ParseFailure) Error() string { return "unparseable verdict: " + e.Reason }
