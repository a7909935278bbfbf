// Package kv provides the byte-oriented key-value stores that back persisted
// progress state: a local SQLite file, a hosted Postgres table, and a Chain that
// reads through them in priority order.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no store holds the key.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable is returned when every store in a chain failed.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is a key-value capability.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or replaces the value for key.
	Put(ctx context.Context, key string, value []byte) error
}

// MultiGetter is implemented by stores that can return every copy of a key they
// hold, so callers can reconcile copies that diverged during an outage.
type MultiGetter interface {
	// GetAll returns the value of key from each store that holds it, in
	// priority order, or ErrNotFound / ErrUnavailable like Get.
	GetAll(ctx context.Context, key string) ([][]byte, error)
}
