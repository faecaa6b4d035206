package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/scopeguard/internal/model"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a Result as a human-readable text timeline.
func FormatTimeline(result *Result) string {
	title := scopeTitle(result)
	if len(result.Entries) == 0 {
		return fmt.Sprintf("%s | No entries found.\n", title)
	}

	var b strings.Builder

	first := formatDateTime(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	fmt.Fprintf(&b, "%s | %s–%s UTC\n", title, first, last)
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		ts := formatTimeOnly(e.Timestamp)
		outcome := strings.ToUpper(string(e.Metadata.Outcome))
		message := ""
		if len(e.Turns) > 0 {
			message = truncate(oneLine(e.Turns[0].Content), 44)
		}

		tag := ""
		switch e.Metadata.Basis {
		case model.BasisCorrected:
			tag = "  [corrected]"
		case model.BasisFailClosed:
			tag = "  [fail-closed]"
		case model.BasisUnavailable:
			tag = "  [unavailable]"
		}

		fmt.Fprintf(&b, "%-10s %-14s %-12s %-44s%s\n",
			ts, outcome, truncate(e.UserID, 12), message, tag)
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a Result as indented JSON.
func FormatJSON(result *Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func scopeTitle(result *Result) string {
	parts := []string{}
	if result.ProjectID != "" {
		parts = append(parts, "Project: "+result.ProjectID)
	}
	if result.UserID != "" {
		parts = append(parts, "User: "+result.UserID)
	}
	if len(parts) == 0 {
		return "Transcript"
	}
	return strings.Join(parts, " | ")
}

func formatDateTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format("15:04:05")
}

func formatSummary(s Summary) string {
	parts := []string{}
	if s.Allowed > 0 {
		parts = append(parts, fmt.Sprintf("%d allowed", s.Allowed))
	}
	if s.Denied > 0 {
		parts = append(parts, fmt.Sprintf("%d denied", s.Denied))
	}
	if s.Indeterminate > 0 {
		parts = append(parts, fmt.Sprintf("%d indeterminate", s.Indeterminate))
	}

	flags := ""
	if s.Corrected > 0 || s.FailClosed > 0 {
		flags = fmt.Sprintf(" | %d corrected, %d fail-closed", s.Corrected, s.FailClosed)
	}
	return fmt.Sprintf("Summary: %s%s\n", strings.Join(parts, ", "), flags)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
