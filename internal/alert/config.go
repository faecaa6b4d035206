package alert

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["denied", "indeterminate", "consistency_correction", "fail_closed"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints for one guarded turn.
type Event struct {
	Timestamp   string `json:"timestamp"`
	TurnID      string `json:"turn_id"`
	UserID      string `json:"user_id"`
	ProjectID   string `json:"project_id"`
	Outcome     string `json:"outcome"` // "allowed", "denied", "indeterminate"
	Basis       string `json:"basis"`   // "provider", "consistency_correction", "fail_closed", "provider_unavailable"
	Reason      string `json:"reason"`
	Provider    string `json:"provider"`
	ContextHash string `json:"context_hash"`
}
