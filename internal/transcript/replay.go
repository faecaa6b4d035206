package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/scopeguard/internal/model"
)

// Filter selects transcript entries. Zero fields match everything.
type Filter struct {
	ProjectID string
	UserID    string
	From      time.Time
	To        time.Time
	// Last keeps only the most recent N matching entries when positive.
	Last int
}

// Match reports whether entry passes the filter, ignoring Last.
func (f Filter) Match(entry model.TranscriptEntry) bool {
	if f.ProjectID != "" && entry.ProjectID != f.ProjectID {
		return false
	}
	if f.UserID != "" && entry.UserID != f.UserID {
		return false
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
		if err != nil {
			return false
		}
		if !f.From.IsZero() && ts.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && ts.After(f.To) {
			return false
		}
	}
	return true
}

// Summary holds outcome counts for a set of entries.
type Summary struct {
	Total          int    `json:"total"`
	Allowed        int    `json:"allowed"`
	Denied         int    `json:"denied"`
	Indeterminate  int    `json:"indeterminate"`
	Corrected      int    `json:"corrected"`
	FailClosed     int    `json:"fail_closed"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// Result holds filtered entries and their summary.
type Result struct {
	ProjectID string                  `json:"project_id,omitempty"`
	UserID    string                  `json:"user_id,omitempty"`
	Entries   []model.TranscriptEntry `json:"entries"`
	Summary   Summary                 `json:"summary"`
}

// Replay reads the JSONL transcript and returns entries matching the filter.
// Malformed lines are skipped; Verify reports them.
func Replay(path string, filter Filter) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []model.TranscriptEntry
	scanner := newScanner(f)
	for scanner.Scan() {
		var entry model.TranscriptEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if filter.Match(entry) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	return Summarize(filter, entries), nil
}

// Summarize applies filter.Last and counts outcomes.
func Summarize(filter Filter, entries []model.TranscriptEntry) *Result {
	if filter.Last > 0 && len(entries) > filter.Last {
		entries = entries[len(entries)-filter.Last:]
	}
	result := &Result{ProjectID: filter.ProjectID, UserID: filter.UserID, Entries: entries}
	for _, e := range entries {
		updateSummary(&result.Summary, e)
	}
	return result
}

func updateSummary(s *Summary, entry model.TranscriptEntry) {
	s.Total++

	switch entry.Metadata.Outcome {
	case model.OutcomeAllowed:
		s.Allowed++
	case model.OutcomeDenied:
		s.Denied++
	case model.OutcomeIndeterminate:
		s.Indeterminate++
	}
	switch entry.Metadata.Basis {
	case model.BasisCorrected:
		s.Corrected++
	case model.BasisFailClosed:
		s.FailClosed++
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
