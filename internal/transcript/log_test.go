package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/scopeguard/internal/model"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open transcript log: %v", err)
	}
	return l, path
}

var entrySeq int

func testEntry(project, user string, outcome model.Outcome) model.TranscriptEntry {
	entrySeq++
	ts := time.Date(2025, 1, 15, 14, 0, entrySeq, 0, time.UTC).Format(time.RFC3339Nano)
	return model.TranscriptEntry{
		ID:        fmt.Sprintf("turn-%d", entrySeq),
		Timestamp: ts,
		UserID:    user,
		ProjectID: project,
		Turns: []model.Turn{
			{Role: model.RoleUser, Content: "Can you trim the intro?", Timestamp: ts},
			{Role: model.RoleAssistant, Content: "Sure.", Timestamp: ts},
		},
		Metadata: model.DecisionMetadata{
			Outcome:     outcome,
			Basis:       model.BasisProvider,
			IsAllowed:   outcome == model.OutcomeAllowed,
			Reasoning:   "test reasoning",
			Provider:    "stub",
			ContextHash: "sha256:abc123",
		},
	}
}

func appendN(t *testing.T, l *Log, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := l.Append(context.Background(), testEntry("p1", "u1", model.OutcomeAllowed)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestSequentialAppendsProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)
	appendN(t, l, 5)
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestFirstEntryReferencesGenesis(t *testing.T) {
	l, path := newTestLog(t)
	appendN(t, l, 1)
	l.Close()

	var entry model.TranscriptEntry
	if err := json.Unmarshal([]byte(readLines(t, path)[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.PrevHash != GenesisHash {
		t.Errorf("expected genesis prev_hash, got %s", entry.PrevHash)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)
	appendN(t, l, 3)
	l.Close()

	// Flip the verdict of line 2.
	lines := readLines(t, path)
	lines[1] = strings.Replace(lines[1], `"is_allowed":true`, `"is_allowed":false`, 1)
	writeLines(t, path, lines)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)
	appendN(t, l, 3)
	l.Close()

	lines := readLines(t, path)
	writeLines(t, path, []string{lines[0], lines[2]})

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with deleted entry to be invalid")
	}
	if result.ErrorLine != 2 {
		t.Fatalf("expected error at line 2, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsReplacedGenesis(t *testing.T) {
	l, path := newTestLog(t)
	appendN(t, l, 2)
	l.Close()

	lines := readLines(t, path)
	writeLines(t, path, lines[1:])

	result := Verify(path)
	if result.Valid || result.ErrorLine != 1 {
		t.Fatalf("expected genesis error on line 1, got %+v", result)
	}
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "missing.jsonl"))
	if result.Valid || result.Error == "" {
		t.Fatalf("expected error for missing file, got %+v", result)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	l, path := newTestLog(t)
	appendN(t, l, 2)
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	appendN(t, l2, 2)
	l2.Close()

	result := Verify(path)
	if !result.Valid || result.Lines != 4 {
		t.Fatalf("expected valid 4-line chain after reopen, got %+v", result)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	l, path := newTestLog(t)
	entry := testEntry("p1", "u1", model.OutcomeDenied)
	if err := l.Append(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	err := l.Append(context.Background(), entry)
	if !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}
	l.Close()

	// Reopening must remember recorded IDs.
	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	if err := l2.Append(context.Background(), entry); !errors.Is(err, ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry after reopen, got %v", err)
	}
	if lines := readLines(t, path); len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
}

func TestAppendHonoursCancelledContext(t *testing.T) {
	l, path := newTestLog(t)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Append(ctx, testEntry("p1", "u1", model.OutcomeAllowed)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if info, _ := os.Stat(path); info != nil && info.Size() != 0 {
		t.Fatal("nothing should be written for a cancelled append")
	}
}

func TestConcurrentAppendsKeepChainValid(t *testing.T) {
	l, path := newTestLog(t)

	entries := make([]model.TranscriptEntry, 20)
	for i := range entries {
		entries[i] = testEntry("p1", "u1", model.OutcomeAllowed)
	}

	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Append(context.Background(), entry); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}()
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid || result.Lines != 20 {
		t.Fatalf("expected valid 20-line chain, got %+v", result)
	}
}
