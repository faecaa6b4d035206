package guardian

import "regexp"

var (
	// Exclusion words count only when they are predicated of the request:
	// "is excluded", "not covered by the contract". A bare "nothing excluded"
	// is not a violation.
	violationLanguage = regexp.MustCompile(`(?i)\b(out[ -]of[ -]scope|outside (of )?(the )?(agreed |contracted )?scope|not (in|within) (the )?(agreed |contracted )?scope|(is|are|was|were|be|being) (explicitly |specifically )?(not covered|not included|excluded)|not (covered|included) (by|in) the (agreed |contracted )?(contract|scope|agreement)|beyond the (agreed |contracted )?scope|scope violation|violates the scope)\b`)
	inScopeLanguage   = regexp.MustCompile(`(?i)\b(is|are|falls|fall) (clearly )?(with)?in (the )?(agreed |contracted )?scope\b`)
)

const (
	correctionNote = "[consistency-correction] The rationale describes a scope violation but the verdict flag was permissive; the request has been restricted."
	annotationNote = "[consistency-correction] The rationale reads as in scope but the verdict flag was restrictive; the restriction is kept pending review."
)

// crossCheck reconciles the verdict flag with its rationale, always toward
// the restrictive state. It reports whether the flag was overridden.
func crossCheck(v Verdict) (Verdict, bool) {
	switch {
	case v.Allowed && violationLanguage.MatchString(v.Reasoning):
		v.Allowed = false
		v.Reasoning = v.Reasoning + " " + correctionNote
		return v, true
	case !v.Allowed && !violationLanguage.MatchString(v.Reasoning) && inScopeLanguage.MatchString(v.Reasoning):
		v.Reasoning = v.Reasoning + " " + annotationNote
		return v, false
	}
	return v, false
}
