package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("scopeguard: %s", headline(event)),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Project:* %s", event.ProjectID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*User:* %s", event.UserID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Basis:* %s", event.Basis)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("scopeguard %s: project %s", headline(event), event.ProjectID),
			"severity": severityFor(event),
			"source":   "scopeguard",
			"custom_details": map[string]any{
				"user_id":      event.UserID,
				"turn_id":      event.TurnID,
				"basis":        event.Basis,
				"reason":       event.Reason,
				"provider":     event.Provider,
				"context_hash": event.ContextHash,
			},
		},
	}
	return json.Marshal(payload)
}

func headline(event Event) string {
	if event.Basis == "consistency_correction" {
		return event.Outcome + " (corrected)"
	}
	return event.Outcome
}

func severityFor(event Event) string {
	switch {
	case event.Outcome == "indeterminate":
		return "error"
	case event.Basis == "consistency_correction", event.Basis == "fail_closed":
		return "warning"
	default:
		return "info"
	}
}
