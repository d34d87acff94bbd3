package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS provisioning_results (
            attempt_id TEXT PRIMARY KEY,
            success    BOOLEAN NOT NULL,
            email      TEXT NOT NULL DEFAULT '',
            username   TEXT NOT NULL DEFAULT '',
            password   TEXT NOT NULL DEFAULT '',
            confirmed  BOOLEAN NOT NULL DEFAULT FALSE,
            error      TEXT NOT NULL DEFAULT '',
            warnings   JSONB NOT NULL DEFAULT '[]',
            created_at TIMESTAMPTZ NOT NULL
        );
    `
	sqlUpsert = `
        INSERT INTO provisioning_results (attempt_id, success, email, username, password, confirmed, error, warnings, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (attempt_id) DO UPDATE SET
            success = EXCLUDED.success,
            email = EXCLUDED.email,
            username = EXCLUDED.username,
            password = EXCLUDED.password,
            confirmed = EXCLUDED.confirmed,
            error = EXCLUDED.error,
            warnings = EXCLUDED.warnings;
    `
	sqlSelect = `
        SELECT attempt_id, success, email, username, password, confirmed, error, warnings, created_at
        FROM provisioning_results
    `
)

// PostgresStore keeps results in a provisioning_results table.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgresStore creates a store and verifies the connection.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the results table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateTable); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save upserts rec by attempt ID.
func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	warnings := rec.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	encoded, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	_, err = s.pool.Exec(ctx, sqlUpsert,
		rec.AttemptID, rec.Success,
		rec.Email, rec.Username, rec.Password, rec.Confirmed,
		rec.Error, string(encoded),
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", rec.AttemptID, err)
	}
	return nil
}

// Get loads one record.
func (s *PostgresStore) Get(ctx context.Context, attemptID string) (Record, error) {
	records, err := s.query(ctx, sqlSelect+` WHERE attempt_id = $1;`, attemptID)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[0], nil
}

// List returns records newest first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit > 0 {
		return s.query(ctx, sqlSelect+` ORDER BY created_at DESC LIMIT $1;`, limit)
	}
	return s.query(ctx, sqlSelect+` ORDER BY created_at DESC;`)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var warnings []byte
		if err := rows.Scan(
			&rec.AttemptID, &rec.Success,
			&rec.Email, &rec.Username, &rec.Password, &rec.Confirmed,
			&rec.Error, &warnings, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		if len(warnings) > 0 {
			if err := json.Unmarshal(warnings, &rec.Warnings); err != nil {
				s.log.Warn("Ignoring malformed warnings column", zap.String("attempt_id", rec.AttemptID), zap.Error(err))
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
