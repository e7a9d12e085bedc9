package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no record.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key-value map. Each actor owns its keys
// exclusively; no two actors share a key. Values must be
// document-shaped (a struct or map), since implementations persist
// them as documents.
type Store interface {
	Get(ctx context.Context, key string, out interface{}) error
	Put(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}
