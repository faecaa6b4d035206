package redact

import "strings"

// Redact scans text for sensitive patterns, allocates tokens in tm, and
// returns the text with all sensitive values replaced by tokens.
// Longer values are replaced first so a value never gets partially tokenized.
func Redact(text string, tm *TokenMap, rules *Rules) string {
	matches := rules.Scan(text)
	if len(matches) == 0 {
		return text
	}

	for _, m := range matches {
		tm.Token(m.Type, m.Value)
	}

	result := text
	for _, val := range tm.Values() {
		result = strings.ReplaceAll(result, val, tm.forward[val])
	}
	return result
}

// Detoken replaces all tokens in text with their original values.
func Detoken(text string, tm *TokenMap) string {
	if tm.Len() == 0 {
		return text
	}
	result := text
	for _, tok := range tm.Tokens() {
		val, _ := tm.Resolve(tok)
		result = strings.ReplaceAll(result, tok, val)
	}
	return result
}
