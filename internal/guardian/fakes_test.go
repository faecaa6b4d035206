package guardian

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/alert"
	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/provider"
	"github.com/ppiankov/scopeguard/internal/scope"
)

type memProjects map[string]model.Project

func (m memProjects) Get(_ context.Context, id string) (model.Project, error) {
	p, ok := m[id]
	if !ok {
		return model.Project{}, fmt.Errorf("project %q: %w", id, model.ErrProjectNotFound)
	}
	return p, nil
}

var testProjects = memProjects{
	"promo": {
		ID:           "promo",
		Name:         "Drone Launch Promo",
		Description:  "Edit a 60-second product video from supplied footage.",
		Deliverables: []string{"Video editing of supplied footage"},
	},
	"bare": {ID: "bare", Name: "Bare"},
}

// stubProvider returns a canned verdict and records what it was sent.
type stubProvider struct {
	mu       sync.Mutex
	verdict  string
	sig      []byte
	err      error
	block    chan struct{} // when set, Reason waits for close or ctx
	requests []provider.Request
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Reason(ctx context.Context, req provider.Request) (*provider.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &provider.Response{Verdict: s.verdict, Signature: model.NewSignature(s.sig), Model: "stub-1"}, nil
}

func (s *stubProvider) calls() []provider.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.Request(nil), s.requests...)
}

// ruleProvider stands in for a reasoning backend that reads the contract.
type ruleProvider struct{}

func (ruleProvider) Name() string { return "rules" }

func (ruleProvider) Reason(_ context.Context, req provider.Request) (*provider.Response, error) {
	text := req.Scope.ScopeDescription
	msg := strings.ToLower(req.Message)
	switch {
	case strings.Contains(msg, "3d") && strings.Contains(text, "3D Animation is OUT of scope unless specified."):
		return &provider.Response{
			Verdict:   `{"allowed":false,"reasoning":"A 3D render is 3D animation, which is out of scope unless specified, and this contract does not specify it.","suggestedResponse":"3D work isn't part of this contract. I can raise a change order with the project lead."}`,
			Signature: model.NewSignature([]byte("rules-sig-deny")),
		}, nil
	case strings.Contains(msg, "trim") && strings.Contains(text, "Video editing is in scope."):
		return &provider.Response{
			Verdict:   `{"allowed":true,"reasoning":"Trimming footage is video editing, which the contract covers.","suggestedResponse":"Sure, I'll trim 10 seconds off the intro."}`,
			Signature: model.NewSignature([]byte("rules-sig-allow")),
		}, nil
	}
	return &provider.Response{
		Verdict:   `{"allowed":false,"reasoning":"The request is ambiguous against the contract.","suggestedResponse":"Could you clarify?"}`,
		Signature: model.NewSignature([]byte("rules-sig-ambiguous")),
	}, nil
}

// memRecorder collects appended entries.
type memRecorder struct {
	mu      sync.Mutex
	entries []model.TranscriptEntry
	err     error
}

func (r *memRecorder) Append(_ context.Context, e model.TranscriptEntry) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) all() []model.TranscriptEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TranscriptEntry(nil), r.entries...)
}

type memAlerts struct {
	mu     sync.Mutex
	events []alert.Event
}

func (a *memAlerts) Dispatch(e alert.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *memAlerts) all() []alert.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]alert.Event(nil), a.events...)
}

type harness struct {
	engine   *Engine
	recorder *memRecorder
	alerts   *memAlerts
}

func newHarness(t *testing.T, p provider.Provider, cfg Config, logger *zap.Logger) *harness {
	t.Helper()
	h := &harness{recorder: &memRecorder{}, alerts: &memAlerts{}}
	e, err := New(Deps{
		Scope:    scope.NewBuilder(testProjects, nil),
		Provider: p,
		Recorder: h.recorder,
		Alerts:   h.alerts,
		Logger:   logger,
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	h.engine = e
	return h
}

// settle waits for detached audit work of every turn evaluated so far.
func (h *harness) settle(t *testing.T) []model.TranscriptEntry {
	t.Helper()
	require.NoError(t, h.engine.Close())
	return h.recorder.all()
}

var errBoom = errors.New("boom")

func shortTimeout() Config {
	cfg := DefaultConfig()
	cfg.ProviderTimeout = 50 * time.Millisecond
	return cfg
}
