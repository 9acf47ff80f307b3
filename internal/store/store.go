// Package store persists gfl's entities as JSON records in SQLite, one table
// per entity kind. Foreign keys are stored as the referenced record's id and
// resolved on load.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrRecordNotFound indicates no record exists for the requested id.
var ErrRecordNotFound = errors.New("record not found")

// Table names, one per entity kind.
const (
	tableCredentials = "credentials"
	tableInstances   = "instances"
	tableWorkflows   = "workflows"
	tableProjects    = "projects"
	tableIssues      = "issues"
	tableWorkspaces  = "workspaces"
)

var tables = []string{
	tableCredentials,
	tableInstances,
	tableWorkflows,
	tableProjects,
	tableIssues,
	tableWorkspaces,
}

// Store is a keyed record store backed by modernc.org/sqlite (pure Go, no CGO).
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and creates missing tables.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One interactive invocation at a time; a single connection keeps
	// SQLite from reporting "database is locked" within the process.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, table := range tables {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id   TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`, table)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) insert(ctx context.Context, table, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", table, id, err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, ?)", table), id, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", table, id, err)
	}
	return nil
}

// replace overwrites the whole record. There is no compare-and-swap: the
// last writer wins.
func (s *Store) replace(ctx context.Context, table, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", table, id, err)
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", table), string(data), id)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, table, id)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, table, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", table, id, err)
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, table)
	if _, err := s.db.ExecContext(ctx, stmt, id, string(data)); err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", table, id, err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, table, id string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", table, id, err)
	}
	return nil
}

// get decodes the record with the given id into dest.
func (s *Store) get(ctx context.Context, table, id string, dest any) error {
	var data string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrRecordNotFound, table, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", table, id, err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", table, id, err)
	}
	return nil
}

// list returns the raw records of a table in insertion order.
func (s *Store) list(ctx context.Context, table string) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s ORDER BY rowid", table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var records [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		records = append(records, []byte(data))
	}
	return records, rows.Err()
}

func (s *Store) ids(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY rowid", table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", table), id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check %s %s: %w", table, id, err)
	}
	return count > 0, nil
}

// Repositories bundles the typed repositories sharing one store.
type Repositories struct {
	Credentials *CredentialsRepository
	Instances   *InstanceRepository
	Workflows   *WorkflowRepository
	Projects    *ProjectRepository
	Issues      *IssueRepository
	Workspaces  *WorkspaceRepository
}

// NewRepositories wires every repository on top of s.
func NewRepositories(s *Store) *Repositories {
	credentials := &CredentialsRepository{store: s}
	instances := &InstanceRepository{store: s, credentials: credentials}
	workflows := &WorkflowRepository{store: s}
	projects := &ProjectRepository{store: s, instances: instances, workflows: workflows}
	return &Repositories{
		Credentials: credentials,
		Instances:   instances,
		Workflows:   workflows,
		Projects:    projects,
		Issues:      &IssueRepository{store: s},
		Workspaces:  &WorkspaceRepository{store: s, projects: projects},
	}
}
