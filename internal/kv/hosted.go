package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HostedStore keeps values in the kv_entries table of the hosted Postgres database.
type HostedStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*HostedStore)(nil)

// NewHosted creates a HostedStore on an existing pool. The table is created by migrations.
func NewHosted(pool *pgxpool.Pool) *HostedStore {
	return &HostedStore{pool: pool}
}

// Get returns the stored value for key.
func (s *HostedStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv_entries WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading hosted %q: %w", key, err)
	}
	return value, nil
}

// Put upserts value under key.
func (s *HostedStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value)
	if err != nil {
		return fmt.Errorf("writing hosted %q: %w", key, err)
	}
	return nil
}
