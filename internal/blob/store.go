// Package blob abstracts the object store used for proof-of-delivery
// photos. The engine only ever sees opaque keys.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound indicates the object does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store accepts a byte buffer plus content type and returns a stable key.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}
