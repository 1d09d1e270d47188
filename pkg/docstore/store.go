// Package docstore provides generic document stores used to persist received
// workflow messages.
package docstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// Store is a generic interface for a keyed document store.
type Store[K comparable, V any] interface {
	// Put writes value under key, replacing any existing document.
	Put(ctx context.Context, key K, value V) error
	// Get retrieves the document stored under key, or ErrNotFound.
	Get(ctx context.Context, key K) (V, error)
	// Closer is included for implementations that manage network connections.
	io.Closer
}
