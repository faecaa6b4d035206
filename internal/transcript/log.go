// Package transcript is the append-only audit trail of guarded turns: a
// hash-chained JSONL log, an insert-only SQLite table, and a fan-out
// recorder writing to both.
package transcript

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/scopeguard/internal/model"
)

// GenesisHash is the prev_hash for the first entry in a new transcript log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ErrDuplicateEntry is returned when an entry ID was already recorded.
var ErrDuplicateEntry = errors.New("transcript: entry already recorded")

// maxLine bounds a single JSONL line when reading the log back.
const maxLine = 1 << 20

// Log is an append-only JSONL transcript with SHA-256 hash chaining.
// Each entry's prev_hash is the hash of the previous entry's JSON line,
// forming a tamper-evident chain.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	ids      map[string]struct{}
	mu       sync.Mutex
}

// Open opens (or creates) a transcript log for appending.
// An existing file is read to recover the chain tail and the recorded IDs.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("transcript: create directory: %w", err)
	}

	prevHash := GenesisHash
	ids := make(map[string]struct{})

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("transcript: read existing log: %w", err)
		}
		scanner := newScanner(f)
		var lastLine []byte
		for scanner.Scan() {
			lastLine = append(lastLine[:0], scanner.Bytes()...)
			var head struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(lastLine, &head) == nil && head.ID != "" {
				ids[head.ID] = struct{}{}
			}
		}
		_ = f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("transcript: scan existing log: %w", err)
		}
		if len(lastLine) > 0 {
			prevHash = HashLine(lastLine)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("transcript: open file: %w", err)
	}

	return &Log{
		path:     path,
		file:     file,
		prevHash: prevHash,
		ids:      ids,
	}, nil
}

// Append writes entry with hash chaining and syncs it to disk.
// It sets PrevHash and, when empty, Timestamp. An ID that was already
// recorded is rejected with ErrDuplicateEntry.
func (l *Log) Append(ctx context.Context, entry model.TranscriptEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transcript: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID != "" {
		if _, dup := l.ids[entry.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ID)
		}
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("transcript: marshal entry: %w", err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("transcript: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("transcript: sync: %w", err)
	}

	l.prevHash = HashLine(line)
	if entry.ID != "" {
		l.ids[entry.ID] = struct{}{}
	}
	return nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the given bytes.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}

func newScanner(f *os.File) *bufio.Scanner {
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), maxLine)
	return s
}
