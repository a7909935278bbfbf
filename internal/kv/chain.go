package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain reads from its stores in priority order and writes through to all of them.
//
// Get returns the first value found, skipping stores that fail. If no store has
// the key and at least one failed, the absence cannot be trusted and Get returns
// ErrUnavailable instead of ErrNotFound.
//
// Put succeeds if at least one store accepted the write.
type Chain struct {
	stores     []Store
	log        *slog.Logger
	onFallback func(op string)
}

var (
	_ Store       = (*Chain)(nil)
	_ MultiGetter = (*Chain)(nil)
)

// NewChain builds a chain; nil stores are skipped so optional backends can be passed as-is.
func NewChain(log *slog.Logger, stores ...Store) *Chain {
	c := &Chain{log: log}
	for _, s := range stores {
		if s != nil {
			c.stores = append(c.stores, s)
		}
	}
	return c
}

// OnFallback registers a hook called whenever an operation had to skip a failing store.
func (c *Chain) OnFallback(fn func(op string)) {
	c.onFallback = fn
}

func (c *Chain) fellBack(op string) {
	if c.onFallback != nil {
		c.onFallback(op)
	}
}

// Get implements Store.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	var errs []error
	for _, s := range c.stores {
		v, err := s.Get(ctx, key)
		if err == nil {
			if len(errs) > 0 {
				c.fellBack("get")
			}
			return v, nil
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		c.log.Warn("kv get failed, trying next store", "key", key, "error", err)
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		c.fellBack("get")
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
	}
	return nil, ErrNotFound
}

// GetAll implements MultiGetter. Failing stores are skipped; if none of the
// stores that answered holds the key and one failed, it returns ErrUnavailable.
func (c *Chain) GetAll(ctx context.Context, key string) ([][]byte, error) {
	var (
		values [][]byte
		errs   []error
	)
	for _, s := range c.stores {
		v, err := s.Get(ctx, key)
		switch {
		case err == nil:
			values = append(values, v)
		case errors.Is(err, ErrNotFound):
		default:
			c.log.Warn("kv get failed, trying next store", "key", key, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		c.fellBack("get")
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
		}
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return values, nil
}

// Put implements Store.
func (c *Chain) Put(ctx context.Context, key string, value []byte) error {
	if len(c.stores) == 0 {
		return fmt.Errorf("%w: no stores configured", ErrUnavailable)
	}
	var errs []error
	for _, s := range c.stores {
		if err := s.Put(ctx, key, value); err != nil {
			c.log.Warn("kv put failed", "key", key, "error", err)
			errs = append(errs, err)
		}
	}
	switch {
	case len(errs) == len(c.stores):
		return fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
	case len(errs) > 0:
		c.fellBack("put")
	}
	return nil
}
