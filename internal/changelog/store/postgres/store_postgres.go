package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/pkg/platform/sentinel"
	"policysync/pkg/requestcontext"
)

//go:embed schema.sql
var schema string

const watermarkKey = "watermark"

// PostgresStore persists the replica in PostgreSQL. Records are stored as
// their JSON envelope in a json (not jsonb) column so the signed bytes are
// kept as received; an upsert replaces a row in one statement so readers
// never observe a partial record.
type PostgresStore struct {
	db *sql.DB
}

var _ ports.Backend = (*PostgresStore)(nil)

// New constructs a PostgreSQL-backed store.
func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply changelog schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, name string) (models.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM changelog_domains WHERE name = $1`, name,
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

func (s *PostgresStore) Save(ctx context.Context, name string, record models.Record) error {
	payload, err := models.MarshalRecord(record)
	if err != nil {
		return fmt.Errorf("encode domain %q: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO changelog_domains (name, mode, record, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			mode = EXCLUDED.mode,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at
	`, name, string(record.Mode()), string(payload), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("save domain: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM changelog_domains WHERE name = $1`, name); err != nil {
		return fmt.Errorf("remove domain: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNames(ctx context.Context) ([]string, error) {
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

func (s *PostgresStore) Watermark(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM changelog_state WHERE key = $1`, watermarkKey,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read watermark: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) SetWatermark(ctx context.Context, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO changelog_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, watermarkKey, value)
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}
