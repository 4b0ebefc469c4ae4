package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kasocial/internal/models"
)

// PostgresStore implements ProgressStore on PostgreSQL, making write
// resumability survive process restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and ensures the progress table
// exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS write_progress (
			fingerprint TEXT PRIMARY KEY,
			author TEXT NOT NULL,
			status TEXT NOT NULL,
			resumable BOOLEAN NOT NULL,
			progress JSONB NOT NULL,
			pieces JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create write_progress table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Save upserts the record keyed by its fingerprint.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	progressJSON, err := json.Marshal(rec.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	piecesJSON, err := json.Marshal(rec.Pieces)
	if err != nil {
		return fmt.Errorf("failed to marshal pieces: %w", err)
	}

	query := `
		INSERT INTO write_progress (fingerprint, author, status, resumable, progress, pieces, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (fingerprint) DO UPDATE SET
			status = EXCLUDED.status,
			resumable = EXCLUDED.resumable,
			progress = EXCLUDED.progress,
			pieces = EXCLUDED.pieces,
			updated_at = now()
	`
	_, err = s.pool.Exec(ctx, query,
		rec.Progress.Fingerprint,
		rec.Progress.Author,
		string(rec.Progress.Status),
		rec.Progress.Resumable,
		progressJSON,
		piecesJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save write progress: %w", err)
	}
	return nil
}

// Get loads the record for fingerprint.
func (s *PostgresStore) Get(ctx context.Context, fingerprint string) (*Record, error) {
	query := `SELECT progress, pieces FROM write_progress WHERE fingerprint = $1`

	var progressJSON, piecesJSON []byte
	err := s.pool.QueryRow(ctx, query, fingerprint).Scan(&progressJSON, &piecesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load write progress: %w", err)
	}

	rec := &Record{Progress: &models.WriteProgress{}}
	if err := json.Unmarshal(progressJSON, rec.Progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	if err := json.Unmarshal(piecesJSON, &rec.Pieces); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pieces: %w", err)
	}
	return rec, nil
}

// Delete removes the record for fingerprint.
func (s *PostgresStore) Delete(ctx context.Context, fingerprint string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM write_progress WHERE fingerprint = $1`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to delete write progress: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
