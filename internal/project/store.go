// Package project holds the project metadata the scope contract is built
// from: a SQLite store and an optional Redis read-through cache.
package project

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/scopeguard/internal/model"
	"github.com/ppiankov/scopeguard/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store persists projects in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the project table in the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := storage.OpenSQLite(path, schemaSQL)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// NewStore uses an already open database, applying the schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("project: apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// DB returns the underlying database so other tables can share it.
func (s *Store) DB() *sql.DB { return s.db }

// Get returns the project with id, or model.ErrProjectNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, deliverables, updated_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, fmt.Errorf("project %q: %w", id, model.ErrProjectNotFound)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("project: get %q: %w", id, err)
	}
	return p, nil
}

// Put creates or replaces a project. UpdatedAt is set to now.
func (s *Store) Put(ctx context.Context, p model.Project) (model.Project, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return model.Project{}, fmt.Errorf("project: id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return model.Project{}, fmt.Errorf("project: name is required")
	}
	if p.Deliverables == nil {
		p.Deliverables = []string{}
	}
	deliverables, err := json.Marshal(p.Deliverables)
	if err != nil {
		return model.Project{}, fmt.Errorf("project: marshal deliverables: %w", err)
	}
	p.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, deliverables, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			deliverables = excluded.deliverables,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Description, string(deliverables), p.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return model.Project{}, fmt.Errorf("project: put %q: %w", p.ID, err)
	}
	return p, nil
}

// List returns all projects ordered by id.
func (s *Store) List(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, deliverables, updated_at FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("project: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("project: list: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (model.Project, error) {
	var (
		p            model.Project
		deliverables string
		updatedAt    string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &deliverables, &updatedAt); err != nil {
		return model.Project{}, err
	}
	if err := json.Unmarshal([]byte(deliverables), &p.Deliverables); err != nil {
		return model.Project{}, fmt.Errorf("decode deliverables: %w", err)
	}
	if len(p.Deliverables) == 0 {
		p.Deliverables = nil
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.Project{}, fmt.Errorf("decode updated_at: %w", err)
	}
	p.UpdatedAt = t
	return p, nil
}
