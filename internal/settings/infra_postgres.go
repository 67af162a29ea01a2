package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore держит документ строкой в таблице gateway_settings.
type PostgresStore struct {
	db   *sql.DB
	name string
}

func NewPostgresStore(ctx context.Context, db *sql.DB, name string) (*PostgresStore, error) {
	if name == "" {
		name = "models"
	}
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gateway_settings (
			name       TEXT PRIMARY KEY,
			document   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create gateway_settings: %w", err)
	}
	return &PostgresStore{db: db, name: name}, nil
}

func (s *PostgresStore) Location() string {
	return "postgres:gateway_settings/" + s.name
}

func (s *PostgresStore) Read(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT document
		FROM gateway_settings
		WHERE name = $1
	`, s.name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) Write(ctx context.Context, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_settings (name, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET document = EXCLUDED.document, updated_at = now()
	`, s.name, string(doc))
	return err
}
