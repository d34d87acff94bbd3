// Package store persists provisioning results.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
)

var (
	// ErrNotFound is returned when no record has the requested attempt ID.
	ErrNotFound = errors.New("store: record not found")
	// ErrInvalidID is returned for attempt IDs that cannot name a record.
	ErrInvalidID = errors.New("store: invalid attempt id")
)

// Record is the persisted form of one attempt's outcome.
type Record struct {
	AttemptID string    `json:"attemptId"`
	Success   bool      `json:"success"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"password,omitempty"`
	Confirmed bool      `json:"confirmed"`
	Error     string    `json:"error,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Redacted returns the record without its password.
func (r Record) Redacted() Record {
	r.Password = ""
	return r
}

// Repository saves and reads back results.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, attemptID string) (Record, error)
	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Open builds the repository selected by cfg. It returns nil for type "none".
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Repository, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "file":
		return NewFileStore(cfg.OutputDir, logger)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		s, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
