// Package storage defines the durable key/value store that holds what a
// browser would keep in cookies and localStorage.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: key not found")

// Store is a small key/value store. A ttl of zero means no expiry; expired
// keys behave as missing.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
