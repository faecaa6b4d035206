package redact

import (
	"regexp"
	"sort"
	"strings"
)

// PatternType identifies the category of sensitive data.
type PatternType string

const (
	PatternIP    PatternType = "IP"
	PatternHost  PatternType = "HOST"
	PatternCred  PatternType = "CRED"
	PatternEmail PatternType = "EMAIL"
	PatternPhone PatternType = "PHONE"
	PatternCard  PatternType = "CARD"
	PatternLit   PatternType = "LITERAL"
)

// Match is a single occurrence of sensitive data in text.
type Match struct {
	Type  PatternType
	Value string
	Start int
	End   int
}

var (
	// IPv4 addresses (4 octets, range not validated).
	ipv4Re = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)

	// Hostnames: FQDN with at least one dot and a TLD.
	hostRe = regexp.MustCompile(`\b([a-zA-Z0-9][-a-zA-Z0-9]*\.[-a-zA-Z0-9]+\.[a-zA-Z]{2,})\b`)

	// Credentials: key=value pairs where the key suggests a secret.
	credKVRe = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_key|apikey|auth)[ \t]*[=:][ \t]*\S+)`)

	emailRe = regexp.MustCompile(`\b([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})\b`)

	// Card numbers: 13 to 19 digits, optionally grouped by spaces or dashes.
	cardRe = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

	// Phone numbers: optional +, then at least 9 digits with common separators.
	phoneRe = regexp.MustCompile(`\+?\(?\d{1,4}\)?(?:[ .\-]?\d){8,14}\b`)
)

// Rules is a compiled scanner configuration. The zero value scans with the
// built-in patterns only.
type Rules struct {
	Extra     []ExtraPattern
	SafeHosts map[string]bool
	Literals  []string
}

// defaultSafeHosts are domains that are never tokenized.
var defaultSafeHosts = map[string]bool{
	"example.com": true,
	"example.org": true,
	"example.net": true,
	"youtube.com": true,
	"vimeo.com":   true,
	"github.com":  true,
	"google.com":  true,
}

// Scan finds sensitive values using the built-in patterns only.
func Scan(text string) []Match {
	return (*Rules)(nil).Scan(text)
}

// Scan finds all sensitive patterns in text and returns deduplicated matches
// sorted by position (earliest first). A nil receiver uses the defaults.
func (r *Rules) Scan(text string) []Match {
	seen := make(map[string]bool)
	var matches []Match

	add := func(typ PatternType, value string, start int) {
		value = strings.TrimRight(value, ".,;:\"'`)}]")
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		matches = append(matches, Match{Type: typ, Value: value, Start: start, End: start + len(value)})
	}

	if r != nil {
		for _, lit := range r.Literals {
			if i := strings.Index(text, lit); lit != "" && i >= 0 {
				add(PatternLit, lit, i)
			}
		}
		for _, p := range r.Extra {
			for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
				add(p.TokenPrefix, text[loc[0]:loc[1]], loc[0])
			}
		}
	}

	for _, loc := range credKVRe.FindAllStringIndex(text, -1) {
		add(PatternCred, text[loc[0]:loc[1]], loc[0])
	}

	for _, loc := range emailRe.FindAllStringIndex(text, -1) {
		add(PatternEmail, text[loc[0]:loc[1]], loc[0])
	}

	for _, loc := range ipv4Re.FindAllStringIndex(text, -1) {
		v := text[loc[0]:loc[1]]
		if v != "127.0.0.1" && v != "0.0.0.0" {
			add(PatternIP, v, loc[0])
		}
	}

	for _, loc := range hostRe.FindAllStringIndex(text, -1) {
		v := text[loc[0]:loc[1]]
		if !r.safeHost(v) && !isIPLike(v) && !insideEmail(matches, loc[0]) {
			add(PatternHost, v, loc[0])
		}
	}

	for _, loc := range cardRe.FindAllStringIndex(text, -1) {
		v := text[loc[0]:loc[1]]
		if luhn(v) {
			add(PatternCard, v, loc[0])
		}
	}

	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		if !overlaps(matches, loc[0], loc[1]) {
			add(PatternPhone, text[loc[0]:loc[1]], loc[0])
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})

	return matches
}

func (r *Rules) safeHost(host string) bool {
	lower := strings.ToLower(host)
	for safe := range defaultSafeHosts {
		if lower == safe || strings.HasSuffix(lower, "."+safe) {
			return true
		}
	}
	if r == nil {
		return false
	}
	return r.SafeHosts[lower]
}

func insideEmail(matches []Match, pos int) bool {
	for _, m := range matches {
		if m.Type == PatternEmail && pos >= m.Start && pos < m.End {
			return true
		}
	}
	return false
}

func overlaps(matches []Match, start, end int) bool {
	for _, m := range matches {
		if start < m.End && m.Start < end {
			return true
		}
	}
	return false
}

// isIPLike returns true if the string looks like an IP address (all digits and dots).
func isIPLike(s string) bool {
	for _, c := range s {
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}
