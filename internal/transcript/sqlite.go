package transcript

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store keeps transcript entries in an insert-only SQLite table for
// querying by project and user.
type Store struct {
	db *sql.DB
}

// OpenStore opens the transcript table in the SQLite database at path.
func OpenStore(path string) (*Store, error) {
	db, err := storage.OpenSQLite(path, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore uses an already open database, applying the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("transcript: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append inserts entry. An ID that was already recorded is rejected with
// ErrDuplicateEntry and the stored row is left untouched.
func (s *Store) Append(ctx context.Context, entry model.TranscriptEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("transcript: entry id is required")
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("transcript: marshal entry: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript_entries (id, ts, user_id, project_id, outcome, basis, is_allowed, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		entry.ID, entry.Timestamp, entry.UserID, entry.ProjectID,
		string(entry.Metadata.Outcome), string(entry.Metadata.Basis),
		boolToInt(entry.Metadata.IsAllowed), string(body),
	)
	if err != nil {
		return fmt.Errorf("transcript: insert entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transcript: insert entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, entry.ID)
	}
	return nil
}

// Query returns entries matching filter, oldest first.
func (s *Store) Query(ctx context.Context, filter Filter) (*Result, error) {
	var where []string
	var args []any
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}

	q := "SELECT body FROM transcript_entries"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts, rowid"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("transcript: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.TranscriptEntry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("transcript: scan: %w", err)
		}
		var entry model.TranscriptEntry
		if err := json.Unmarshal([]byte(body), &entry); err != nil {
			return nil, fmt.Errorf("transcript: decode entry: %w", err)
		}
		// Time bounds are applied on the parsed timestamp, not the text column.
		if filter.Match(entry) {
			entries = append(entries, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: rows: %w", err)
	}

	return Summarize(filter, entries), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
