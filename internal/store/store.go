// Package store is the durable key-value map the ledger and watcher sit on.
// Only single-key writes are atomic.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX writes value only when key is absent and reports whether it wrote.
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	// Keys returns every key matching a glob pattern such as "campaign:*".
	Keys(ctx context.Context, pattern string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}
