package model

import (
	"errors"
	"time"
)

// ErrProjectNotFound is returned when no project matches the requested ID.
var ErrProjectNotFound = errors.New("project not found")

// Project is the subset of project metadata the guardian reasons about.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Deliverables []string  `json:"deliverables,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RuleSource records where a rule statement came from.
type RuleSource string

const (
	RulePlatform RuleSource = "platform"
	RuleProject  RuleSource = "project"
)

// RuleStatement is one inclusion or exclusion rule of a scope contract.
type RuleStatement struct {
	ID     string     `json:"id"`
	Text   string     `json:"text"`
	Source RuleSource `json:"source"`
}

// ScopeContext is the scope contract for a single evaluation.
// It is built fresh per call and never persisted or mutated.
type ScopeContext struct {
	ProjectID        string          `json:"project_id"`
	ProjectName      string          `json:"project_name"`
	ScopeDescription string          `json:"scope_description"`
	DomainRules      []RuleStatement `json:"domain_rules"`
}

// Outcome is the audited result of one guarded turn.
type Outcome string

const (
	OutcomeAllowed       Outcome = "allowed"
	OutcomeDenied        Outcome = "denied"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// Basis explains how a decision was reached.
type Basis string

const (
	// BasisProvider means the provider verdict was used as returned.
	BasisProvider Basis = "provider"
	// BasisCorrected means the verdict flag contradicted its rationale and
	// was forced to the restrictive state.
	BasisCorrected Basis = "consistency_correction"
	// BasisFailClosed means the verdict could not be parsed.
	BasisFailClosed Basis = "fail_closed"
	// BasisUnavailable means no verdict was obtained from the provider.
	BasisUnavailable Basis = "provider_unavailable"
)

// Decision is the guardian's answer for one inbound message.
type Decision struct {
	IsAllowed         bool      `json:"isAllowed"`
	Reasoning         string    `json:"reasoning"`
	SuggestedResponse string    `json:"suggestedResponse"`
	NewSignature      Signature `json:"signature"`

	TurnID string `json:"turnId,omitempty"`
	Basis  Basis  `json:"basis,omitempty"`
}

// Outcome maps the decision onto its audited outcome.
func (d Decision) Outcome() Outcome {
	if d.IsAllowed {
		return OutcomeAllowed
	}
	return OutcomeDenied
}

// Turn roles recorded in transcripts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message of a conversation turn.
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"ts"`
}

// DecisionMetadata is the audited rationale attached to a transcript entry.
// Signature is stored base64-encoded; the transcript is inside the audit boundary.
type DecisionMetadata struct {
	Outcome              Outcome `json:"outcome"`
	Basis                Basis   `json:"basis"`
	IsAllowed            bool    `json:"is_allowed"`
	Reasoning            string  `json:"reasoning"`
	Signature            string  `json:"signature,omitempty"`
	PriorSignatureDigest string  `json:"prior_signature_digest,omitempty"`
	Provider             string  `json:"provider"`
	ContextHash          string  `json:"context_hash"`
	Error                string  `json:"error,omitempty"`
}

// TranscriptEntry is one write-once audit record. All fields are structs or
// slices of structs so json.Marshal output is deterministic for hash chaining.
type TranscriptEntry struct {
	ID        string           `json:"id"`
	Timestamp string           `json:"ts"`
	UserID    string           `json:"user_id"`
	ProjectID string           `json:"project_id"`
	Turns     []Turn           `json:"turns"`
	Metadata  DecisionMetadata `json:"decision"`
	PrevHash  string           `json:"prev_hash"`
}
