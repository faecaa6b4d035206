package redact

import "strings"

// Mode determines whether redaction is applied.
type Mode string

const (
	ModeLocal Mode = "local" // no redaction, the backend runs on this host
	ModeCloud Mode = "cloud" // mandatory redaction, the backend is remote
)

// DetectMode infers the redaction mode from the provider endpoint.
// An empty endpoint means the provider's public cloud API.
func DetectMode(apiURL string) Mode {
	lower := strings.ToLower(apiURL)
	if strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1") || strings.Contains(lower, "[::1]") {
		return ModeLocal
	}
	return ModeCloud
}

// ResolveMode applies the configured override to the detected mode:
//   - "always" → cloud (force redaction)
//   - "never"  → local (skip redaction)
//   - "" or "auto" → detect from URL
func ResolveMode(apiURL, override string) Mode {
	switch strings.ToLower(strings.TrimSpace(override)) {
	case "always":
		return ModeCloud
	case "never":
		return ModeLocal
	default:
		return DetectMode(apiURL)
	}
}
