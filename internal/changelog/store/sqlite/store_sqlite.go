// Package sqlite keeps the replica in a single SQLite file, for hosts that
// want transactional storage without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/pkg/platform/sentinel"
	"policysync/pkg/requestcontext"
)

const watermarkKey = "watermark"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
	"PRAGMA synchronous=NORMAL",
}

const schema = `
CREATE TABLE IF NOT EXISTS changelog_domains (
    name       TEXT PRIMARY KEY,
    mode       TEXT NOT NULL,
    record     TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS changelog_state (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// SQLiteStore persists the replica in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.Backend = (*SQLiteStore)(nil)

// Open opens (or creates) the database at path, applies pragmas and the schema.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps WAL mode free of SQLITE_BUSY on upserts.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply changelog schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (models.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM changelog_domains WHERE name = ?`, name,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("domain %q: %w", name, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find domain: %w", err)
	}
	rec, err := models.UnmarshalRecord([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("domain %q: %w: %v", name, sentinel.ErrInvalidState, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Save(ctx context.Context, name string, record models.Record) error {
	payload, err := models.MarshalRecord(record)
	if err != nil {
		return fmt.Errorf("encode domain %q: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO changelog_domains (name, mode, record, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			mode = excluded.mode,
			record = excluded.record,
			updated_at = excluded.updated_at
	`, name, string(record.Mode()), string(payload), requestcontext.Now(ctx).UTC())
	if err != nil {
		return fmt.Errorf("save domain: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM changelog_domains WHERE name = ?`, name); err != nil {
		return fmt.Errorf("remove domain: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM changelog_domains`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan domain name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return names, nil
}

func (s *SQLiteStore) Watermark(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM changelog_state WHERE key = ?`, watermarkKey,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read watermark: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetWatermark(ctx context.Context, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO changelog_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, watermarkKey, value)
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}
