package provider

import (
	"fmt"
	"strings"
)

// systemPrompt instructs the backend to act as the scope guardian and to
// answer with a single JSON verdict.
const systemPrompt = `You are the Scope Guardian for a creative production project. A client or contributor has sent a chat message. Decide whether the request is within the contracted scope of work described in the SCOPE CONTRACT.

Rules:
- Platform rules in the contract are a policy floor. Project extensions may add permissions the floor reserves ("unless specified"); nothing else overrides the floor.
- If the request is ambiguous or not clearly covered, it is NOT allowed.
- The reasoning must justify the decision and cite the rule it relies on.
- The suggested response is a short, polite reply to the requester. For out-of-scope requests, offer a change order or a conversation with the project lead.

Return ONLY valid JSON, no markdown fences, no commentary:
{"allowed": <true|false>, "reasoning": "<why, citing the rule>", "suggestedResponse": "<reply to the requester>"}`

// userPrompt renders the contract and message for the backend.
func userPrompt(scopeText, message string) string {
	var b strings.Builder
	b.WriteString("SCOPE CONTRACT:\n")
	b.WriteString(strings.TrimRight(scopeText, "\n"))
	b.WriteString("\n\nCLIENT MESSAGE:\n")
	b.WriteString(message)
	return b.String()
}

// cleanJSON strips markdown fences and surrounding whitespace that some
// models add despite instructions.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:max], len(s))
}
