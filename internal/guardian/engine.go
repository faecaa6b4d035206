// Package guardian decides whether an inbound chat message is within a
// project's contracted scope of work. It is the only component with business
// logic: it builds the scope contract, makes exactly one provider call,
// validates the verdict, fails closed on anything it cannot verify, and
// hands every turn that reached the provider to the transcript recorder.
package guardian

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/scopeguard/internal/alert"
	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/provider"
	"github.com/ppiankov/scopeguard/internal/redact"
	"github.com/ppiankov/scopeguard/internal/scope"
)

// ErrClosed is returned by Evaluate after Close.
var ErrClosed = errors.New("guardian: engine closed")

// ScopeBuilder builds the scope contract for a project.
type ScopeBuilder interface {
	Build(ctx context.Context, projectID string) (model.ScopeContext, error)
}

// Recorder appends write-once transcript entries.
type Recorder interface {
	Append(ctx context.Context, entry model.TranscriptEntry) error
}

// Notifier receives an event for every audited turn.
type Notifier interface {
	Dispatch(event alert.Event)
}

// Config bounds an evaluation.
type Config struct {
	MaxMessageChars  int
	TruncateOverlong bool
	ProviderTimeout  time.Duration
	AuditTimeout     time.Duration
	// RedactMode "cloud" tokenizes personal data before it reaches the provider.
	RedactMode  redact.Mode
	RedactRules *redact.Rules
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		MaxMessageChars: 1000,
		ProviderTimeout: 20 * time.Second,
		AuditTimeout:    10 * time.Second,
		RedactMode:      redact.ModeLocal,
	}
}

// Deps are the collaborators of an Engine. Recorder and Alerts may be nil.
type Deps struct {
	Scope    ScopeBuilder
	Provider provider.Provider
	Recorder Recorder
	Alerts   Notifier
	Logger   *zap.Logger
}

// Request is one inbound message.
type Request struct {
	UserID         string
	ProjectID      string
	Message        string
	PriorSignature model.Signature
}

// Engine evaluates messages. It keeps no per-request state between calls
// and is safe for concurrent use.
type Engine struct {
	scope    ScopeBuilder
	provider provider.Provider
	recorder Recorder
	alerts   Notifier
	cfg      Config
	logger   *zap.Logger

	now   func() time.Time
	newID func() string

	redactRules atomic.Pointer[redact.Rules]

	// mu orders inflight.Add against Close: once closed is set no turn
	// can enter, so Wait sees every turn that will ever run.
	mu        sync.Mutex
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once
	auditErrs chan auditFailure
	drained   chan struct{}
}

type auditFailure struct {
	turnID string
	err    error
}

// New creates an Engine. Zero fields of cfg take their defaults.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Scope == nil {
		return nil, fmt.Errorf("guardian: scope builder is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("guardian: provider is required")
	}
	def := DefaultConfig()
	if cfg.MaxMessageChars <= 0 {
		cfg.MaxMessageChars = def.MaxMessageChars
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = def.ProviderTimeout
	}
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = def.AuditTimeout
	}
	if cfg.RedactMode == "" {
		cfg.RedactMode = def.RedactMode
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		scope:     deps.Scope,
		provider:  deps.Provider,
		recorder:  deps.Recorder,
		alerts:    deps.Alerts,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		auditErrs: make(chan auditFailure, 64),
		drained:   make(chan struct{}),
	}
	e.redactRules.Store(cfg.RedactRules)
	go e.drainAuditErrors()
	return e, nil
}

// Evaluate decides whether req.Message is within the project's scope.
//
// Errors: *ValidationError and model.ErrProjectNotFound are returned before
// any provider call. *ProviderUnavailableError means no verdict was obtained.
// An unverifiable verdict is not an error: it yields a restrictive Decision.
//
// If ctx is cancelled while the provider call is in flight, Evaluate returns
// ctx.Err() but the evaluation runs to completion and is still audited.
func (e *Engine) Evaluate(ctx context.Context, req Request) (model.Decision, error) {
	if !e.enter() {
		return model.Decision{}, ErrClosed
	}

	msg, err := e.normalize(req.Message)
	if err != nil {
		e.inflight.Done()
		return model.Decision{}, err
	}

	sc, err := e.scope.Build(ctx, req.ProjectID)
	if err != nil {
		e.inflight.Done()
		return model.Decision{}, err
	}

	t := &turn{
		id:      e.newID(),
		req:     req,
		message: msg,
		scope:   sc,
		started: e.now(),
		done:    make(chan result, 1),
	}

	go e.run(context.WithoutCancel(ctx), t)

	select {
	case r := <-t.done:
		return r.decision, r.err
	case <-ctx.Done():
		e.logger.Warn("caller went away, evaluation continues",
			zap.String("turn_id", t.id),
			zap.String("project_id", req.ProjectID))
		return model.Decision{}, ctx.Err()
	}
}

// SetRedactRules swaps the redaction rules used by subsequent evaluations.
func (e *Engine) SetRedactRules(rules *redact.Rules) {
	e.redactRules.Store(rules)
}

// enter registers a turn unless the engine is closed. The caller must
// call inflight.Done when the turn ends.
func (e *Engine) enter() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

// Close rejects new evaluations and waits for admitted ones, including
// their detached audit writes, to finish.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.inflight.Wait()
		close(e.auditErrs)
		<-e.drained
	})
	return nil
}

func (e *Engine) normalize(message string) (string, error) {
	msg := strings.TrimSpace(norm.NFC.String(message))
	if msg == "" {
		return "", &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(msg); n > e.cfg.MaxMessageChars {
		if !e.cfg.TruncateOverlong {
			return "", &ValidationError{
				Field:  "message",
				Reason: fmt.Sprintf("%d characters exceeds the limit of %d", n, e.cfg.MaxMessageChars),
			}
		}
		msg = string([]rune(msg)[:e.cfg.MaxMessageChars])
	}
	return msg, nil
}

type turn struct {
	id      string
	req     Request
	message string
	scope   model.ScopeContext
	started time.Time
	tokens  *redact.TokenMap
	done    chan result
}

type result struct {
	decision model.Decision
	err      error
}

// run executes the provider call and the audit write on a context detached
// from the caller. The result is published before the audit write starts.
func (e *Engine) run(ctx context.Context, t *turn) {
	defer e.inflight.Done()

	resp, callErr := e.callProvider(ctx, t)

	var r result
	if callErr != nil {
		r.err = &ProviderUnavailableError{Provider: e.provider.Name(), Err: callErr}
	} else {
		r.decision = e.decide(t, resp)
	}
	t.done <- r

	e.logDecision(t, r)
	entry := e.transcriptEntry(t, r)
	e.notify(entry)
	e.audit(ctx, t.id, entry)
}

func (e *Engine) callProvider(ctx context.Context, t *turn) (*provider.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	message := t.message
	if e.cfg.RedactMode == redact.ModeCloud {
		t.tokens = redact.NewTokenMap(t.id)
		if redacted := redact.Redact(message, t.tokens, e.redactRules.Load()); t.tokens.Len() > 0 {
			message = t.tokens.Legend() + redacted
		}
	}

	type reply struct {
		resp *provider.Response
		err  error
	}
	replies := make(chan reply, 1)
	go func() {
		resp, err := e.provider.Reason(ctx, provider.Request{
			Scope:          t.scope,
			Message:        message,
			PriorSignature: t.req.PriorSignature,
		})
		replies <- reply{resp, err}
	}()

	select {
	case rep := <-replies:
		if rep.err != nil {
			return nil, rep.err
		}
		if rep.resp == nil {
			return nil, fmt.Errorf("%w: empty response", provider.ErrMalformedResponse)
		}
		return rep.resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no verdict within %s: %w", e.cfg.ProviderTimeout, ctx.Err())
	}
}

// decide turns a provider response into a Decision. It never fails: anything
// that cannot be verified becomes a restrictive decision.
func (e *Engine) decide(t *turn, resp *provider.Response) model.Decision {
	d := model.Decision{
		TurnID:       t.id,
		NewSignature: resp.Signature,
	}
	// A provider that issues no new token keeps the chain on the prior one.
	if d.NewSignature.IsZero() {
		d.NewSignature = t.req.PriorSignature
	}

	v, err := ParseVerdict(resp.Verdict)
	if err != nil {
		e.logger.Warn("verdict failed validation, failing closed",
			zap.String("turn_id", t.id),
			zap.String("provider", e.provider.Name()),
			zap.Error(err))
		d.IsAllowed = false
		d.Reasoning = FailClosedReasoning
		d.SuggestedResponse = DefaultSuggestedResponse
		d.Basis = model.BasisFailClosed
		return d
	}

	if t.tokens != nil {
		v.Reasoning = redact.Detoken(v.Reasoning, t.tokens)
		v.SuggestedResponse = redact.Detoken(v.SuggestedResponse, t.tokens)
	}

	v, corrected := crossCheck(v)
	d.IsAllowed = v.Allowed
	d.Reasoning = v.Reasoning
	d.SuggestedResponse = v.SuggestedResponse
	d.Basis = model.BasisProvider
	if corrected {
		d.Basis = model.BasisCorrected
	}
	return d
}

func (e *Engine) transcriptEntry(t *turn, r result) model.TranscriptEntry {
	ts := t.started.UTC().Format(time.RFC3339Nano)
	entry := model.TranscriptEntry{
		ID:        t.id,
		Timestamp: ts,
		UserID:    t.req.UserID,
		ProjectID: t.req.ProjectID,
		Turns:     []model.Turn{{Role: model.RoleUser, Content: t.message, Timestamp: ts}},
		Metadata: model.DecisionMetadata{
			PriorSignatureDigest: t.req.PriorSignature.Digest(),
			Provider:             e.provider.Name(),
			ContextHash:          scope.Fingerprint(t.scope),
		},
	}

	if r.err != nil {
		entry.Metadata.Outcome = model.OutcomeIndeterminate
		entry.Metadata.Basis = model.BasisUnavailable
		entry.Metadata.Error = r.err.Error()
		return entry
	}

	d := r.decision
	entry.Turns = append(entry.Turns, model.Turn{
		Role:      model.RoleAssistant,
		Content:   d.SuggestedResponse,
		Timestamp: e.now().UTC().Format(time.RFC3339Nano),
	})
	entry.Metadata.Outcome = d.Outcome()
	entry.Metadata.Basis = d.Basis
	entry.Metadata.IsAllowed = d.IsAllowed
	entry.Metadata.Reasoning = d.Reasoning
	entry.Metadata.Signature = d.NewSignature.Encode()
	return entry
}

func (e *Engine) notify(entry model.TranscriptEntry) {
	if e.alerts == nil {
		return
	}
	m := entry.Metadata
	if m.Outcome == model.OutcomeAllowed {
		return
	}
	reason := m.Reasoning
	if reason == "" {
		reason = m.Error
	}
	e.alerts.Dispatch(alert.Event{
		Timestamp:   entry.Timestamp,
		TurnID:      entry.ID,
		UserID:      entry.UserID,
		ProjectID:   entry.ProjectID,
		Outcome:     string(m.Outcome),
		Basis:       string(m.Basis),
		Reason:      reason,
		Provider:    m.Provider,
		ContextHash: m.ContextHash,
	})
}

func (e *Engine) audit(ctx context.Context, turnID string, entry model.TranscriptEntry) {
	if e.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AuditTimeout)
	defer cancel()

	if err := e.recorder.Append(ctx, entry); err != nil {
		select {
		case e.auditErrs <- auditFailure{turnID: turnID, err: err}:
		default:
			e.logger.Error("transcript append failed", zap.String("turn_id", turnID), zap.Error(err))
		}
	}
}

func (e *Engine) drainAuditErrors() {
	defer close(e.drained)
	for f := range e.auditErrs {
		e.logger.Error("transcript append failed", zap.String("turn_id", f.turnID), zap.Error(f.err))
	}
}

func (e *Engine) logDecision(t *turn, r result) {
	fields := []zap.Field{
		zap.String("turn_id", t.id),
		zap.String("user_id", t.req.UserID),
		zap.String("project_id", t.req.ProjectID),
		zap.String("provider", e.provider.Name()),
		zap.String("prior_signature", t.req.PriorSignature.Digest()),
		zap.Duration("elapsed", e.now().Sub(t.started)),
	}
	if r.err != nil {
		e.logger.Warn("provider unavailable", append(fields, zap.Error(r.err))...)
		return
	}
	e.logger.Info("scope decision", append(fields,
		zap.Bool("allowed", r.decision.IsAllowed),
		zap.String("basis", string(r.decision.Basis)),
		zap.String("new_signature", r.decision.NewSignature.Digest()),
	)...)
}
