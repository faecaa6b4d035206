package guardian

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FailClosedReasoning is the rationale of every decision whose verdict could not be verified.
const FailClosedReasoning = "Unable to verify scope, defaulting to restricted."

// DefaultSuggestedResponse is relayed when the provider gave no usable reply text.
const DefaultSuggestedResponse = "I can't confirm this request is covered by the current scope of work. Let me check with the project lead before we proceed."

// Verdict is a fully validated provider answer.
type Verdict struct {
	Allowed           bool
	Reasoning         string
	SuggestedResponse string
}

// key aliases seen from providers that ignore the requested field names
var (
	allowedKeys   = []string{"allowed", "isAllowed", "is_allowed"}
	reasoningKeys = []string{"reasoning", "reason", "rationale"}
	responseKeys  = []string{"suggestedResponse", "suggested_response", "response"}
)

// ParseVerdict strictly parses raw provider output. It returns either a
// Verdict or a *ParseFailure, never a partially filled Verdict.
func ParseVerdict(raw string) (Verdict, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return Verdict{}, &ParseFailure{Reason: "not a JSON object"}
	}

	allowedRaw, ok := lookup(fields, allowedKeys)
	if !ok {
		return Verdict{}, &ParseFailure{Reason: "missing allowed"}
	}
	allowed, err := resolveBool(allowedRaw)
	if err != nil {
		return Verdict{}, &ParseFailure{Reason: err.Error()}
	}

	reasoning, err := stringField(fields, reasoningKeys)
	if err != nil || reasoning == "" {
		return Verdict{}, &ParseFailure{Reason: "missing reasoning"}
	}

	suggested, err := stringField(fields, responseKeys)
	if err != nil || suggested == "" {
		suggested = DefaultSuggestedResponse
	}

	return Verdict{Allowed: allowed, Reasoning: reasoning, SuggestedResponse: suggested}, nil
}

func lookup(fields map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && string(v) != "null" {
			return v, true
		}
	}
	return nil, false
}

func stringField(fields map[string]json.RawMessage, keys []string) (string, error) {
	raw, ok := lookup(fields, keys)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// resolveBool accepts a JSON boolean or an unambiguous string spelling of one.
func resolveBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("allowed is not a boolean: %s", truncateRaw(raw))
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "allowed", "in_scope", "in scope":
		return true, nil
	case "false", "no", "denied", "out_of_scope", "out of scope":
		return false, nil
	}
	return false, fmt.Errorf("allowed is not a boolean: %q", s)
}

func truncateRaw(raw json.RawMessage) string {
	if len(raw) > 40 {
		return string(raw[:40]) + "..."
	}
	return string(raw)
}
