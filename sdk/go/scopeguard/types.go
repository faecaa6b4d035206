package scopeguard

import (
	"fmt"

	"github.com/ppiankov/scopeguard/internal/model"
)

// Basis explains how a decision was reached.
type Basis string

const (
	BasisProvider    Basis = Basis(model.BasisProvider)
	BasisCorrected   Basis = Basis(model.BasisCorrected)
	BasisFailClosed  Basis = Basis(model.BasisFailClosed)
	BasisUnavailable Basis = Basis(model.BasisUnavailable)
)

// CheckRequest is one inbound message.
type CheckRequest struct {
	UserID    string
	ProjectID string
	Message   string
	// PreviousSignature is the Signature of the previous Result in the same
	// conversation, empty on the first turn.
	PreviousSignature string
}

// Result is the guardian's decision.
type Result struct {
	Allowed           bool
	Reasoning         string
	SuggestedResponse string
	// Signature is passed back on the next check in the conversation.
	Signature string
	TurnID    string
	Basis     Basis
}

// Project is a contracted scope of work.
type Project struct {
	ID           string
	Name         string
	Description  string
	Deliverables []string
}

// OutOfScopeError is returned by a wrapped ReplyFunc when the message is
// outside the project's scope. SuggestedResponse is the reply to send instead.
type OutOfScopeError struct {
	ProjectID         string
	Reasoning         string
	SuggestedResponse string
	Basis             Basis
}

func (e *OutOfScopeError) Error() string {
	return fmt.Sprintf("scopeguard: not in scope of %s: %s", e.ProjectID, e.Reasoning)
}

func toResult(d model.Decision) Result {
	return Result{
		Allowed:           d.IsAllowed,
		Reasoning:         d.Reasoning,
		SuggestedResponse: d.SuggestedResponse,
		Signature:         d.NewSignature.Encode(),
		TurnID:            d.TurnID,
		Basis:             Basis(d.Basis),
	}
}

func toProject(p model.Project) Project {
	return Project{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Deliverables: p.Deliverables,
	}
}
