package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/scopeguard/internal/guardian"
	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/scope"
)

// ScopeCheckInput defines parameters for the scope_check tool.
type ScopeCheckInput struct {
	ProjectID         string `json:"project_id" jsonschema:"project whose scope applies"`
	Message           string `json:"message" jsonschema:"the client's chat message"`
	PreviousSignature string `json:"previous_signature,omitempty" jsonschema:"signature returned by the previous scope_check in this conversation"`
}

// ScopeCheckOutput contains the guardian's decision.
type ScopeCheckOutput struct {
	Allowed           bool   `json:"allowed"`
	Reasoning         string `json:"reasoning"`
	SuggestedResponse string `json:"suggested_response"`
	Signature         string `json:"signature,omitempty"`
	Basis             string `json:"basis,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ScopeContractInput defines parameters for the scope_contract tool.
type ScopeContractInput struct {
	ProjectID string `json:"project_id" jsonschema:"project whose contract to show"`
}

// ScopeContractOutput contains the rendered contract.
type ScopeContractOutput struct {
	ProjectID   string   `json:"project_id"`
	Contract    string   `json:"contract"`
	Rules       []string `json:"rules"`
	Fingerprint string   `json:"fingerprint"`
}

func (s *Server) handleScopeCheck(ctx context.Context, _ *mcpsdk.CallToolRequest, in ScopeCheckInput) (*mcpsdk.CallToolResult, ScopeCheckOutput, error) {
	prior, err := model.ParseSignature(in.PreviousSignature)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ScopeCheckOutput{Error: "previous_signature must be base64"}, nil
	}

	d, err := s.eval.Evaluate(ctx, guardian.Request{
		UserID:         s.userID,
		ProjectID:      in.ProjectID,
		Message:        in.Message,
		PriorSignature: prior,
	})
	if err != nil {
		out := ScopeCheckOutput{Error: toolError(err)}
		if errors.Is(err, guardian.ErrProviderUnavailable) {
			// Keep the conversation resumable after a retry.
			out.Signature = prior.Encode()
		}
		s.logger.Debug("scope_check failed", zap.Error(err))
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	return nil, ScopeCheckOutput{
		Allowed:           d.IsAllowed,
		Reasoning:         d.Reasoning,
		SuggestedResponse: d.SuggestedResponse,
		Signature:         d.NewSignature.Encode(),
		Basis:             string(d.Basis),
	}, nil
}

func (s *Server) handleScopeContract(ctx context.Context, _ *mcpsdk.CallToolRequest, in ScopeContractInput) (*mcpsdk.CallToolResult, ScopeContractOutput, error) {
	sc, err := s.scope.Build(ctx, in.ProjectID)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ScopeContractOutput{ProjectID: in.ProjectID}, nil
	}
	rules := make([]string, len(sc.DomainRules))
	for i, r := range sc.DomainRules {
		rules[i] = r.ID
	}
	return nil, ScopeContractOutput{
		ProjectID:   sc.ProjectID,
		Contract:    sc.ScopeDescription,
		Rules:       rules,
		Fingerprint: scope.Fingerprint(sc),
	}, nil
}

func toolError(err error) string {
	var verr *guardian.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, model.ErrProjectNotFound):
		return "project not found"
	case errors.Is(err, guardian.ErrProviderUnavailable):
		return "scope check temporarily unavailable, try again"
	default:
		return "scope check failed"
	}
}
