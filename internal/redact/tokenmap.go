package redact

import (
	"fmt"
	"sort"
	"strings"
)

// TokenMap provides bidirectional mapping between sensitive values and tokens
// for one guarded turn. Not goroutine-safe.
type TokenMap struct {
	forward  map[string]string   // sensitive value → "<<TYPE_N>>"
	reverse  map[string]string   // "<<TYPE_N>>" → sensitive value
	counters map[PatternType]int // next number per pattern type
	TurnID   string
}

// NewTokenMap creates an empty token map for a turn.
func NewTokenMap(turnID string) *TokenMap {
	return &TokenMap{
		forward:  make(map[string]string),
		reverse:  make(map[string]string),
		counters: make(map[PatternType]int),
		TurnID:   turnID,
	}
}

// Token returns the token for a sensitive value. The same value always
// returns the same token within a map.
func (tm *TokenMap) Token(typ PatternType, value string) string {
	if tok, ok := tm.forward[value]; ok {
		return tok
	}
	tm.counters[typ]++
	tok := fmt.Sprintf("<<%s_%d>>", typ, tm.counters[typ])
	tm.forward[value] = tok
	tm.reverse[tok] = value
	return tok
}

// Resolve returns the original value for a token.
func (tm *TokenMap) Resolve(token string) (string, bool) {
	v, ok := tm.reverse[token]
	return v, ok
}

// Len returns the number of token mappings.
func (tm *TokenMap) Len() int {
	return len(tm.forward)
}

// Values returns all sensitive values, longest first.
func (tm *TokenMap) Values() []string {
	vals := make([]string, 0, len(tm.forward))
	for v := range tm.forward {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool {
		if len(vals[i]) != len(vals[j]) {
			return len(vals[i]) > len(vals[j])
		}
		return vals[i] < vals[j]
	})
	return vals
}

// Tokens returns all token strings (e.g. "<<EMAIL_1>>"), sorted.
func (tm *TokenMap) Tokens() []string {
	toks := make([]string, 0, len(tm.reverse))
	for t := range tm.reverse {
		toks = append(toks, t)
	}
	sort.Strings(toks)
	return toks
}

// Legend tells the reasoning backend how to treat the tokens.
func (tm *TokenMap) Legend() string {
	if len(tm.forward) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Note: personal or secret values in the client message were replaced with tokens such as <<EMAIL_1>>. ")
	b.WriteString("Do not guess their contents; repeat a token verbatim if you need to refer to it.\n")
	b.WriteString("Tokens:")
	for _, tok := range tm.Tokens() {
		b.WriteString(" " + tok)
	}
	b.WriteString("\n\n")
	return b.String()
}
