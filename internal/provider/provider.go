// Package provider adapts reasoning backends to the guardian. Adapters own
// transport, authentication and the encoding of their continuity state; the
// verdict text they return is parsed by the guardian, not here.
package provider

import (
	"context"
	"errors"

	"github.com/ppiankov/scopeguard/internal/model"
)

var (
	// ErrRateLimited is returned when the backend rejects the call for quota reasons.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrMalformedResponse is returned when the backend answered but no
	// verdict text could be extracted from its envelope.
	ErrMalformedResponse = errors.New("provider returned a malformed response")
)

// Request is one scope reasoning call.
type Request struct {
	Scope          model.ScopeContext
	Message        string
	PriorSignature model.Signature
}

// Response carries the raw verdict text and the backend's new continuity
// token. Verdict is untrusted and may be any shape.
type Response struct {
	Verdict   string
	Signature model.Signature
	Model     string
}

// Provider is the interface every reasoning backend implements.
type Provider interface {
	// Reason makes exactly one backend call. Implementations must not retry.
	Reason(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name recorded in transcripts.
	Name() string
}
