// Package storage persists the client's session state between runs.
//
// The state is a handful of string entries under fixed keys, so the store is
// a small key/value interface with a SQLite implementation for the CLI and
// an in-memory one for tests and throwaway sessions.
package storage

import "context"

// Keys of the persisted session entries.
const (
	KeyAuthToken = "authToken"
	KeyUser      = "user"
)

// Store is durable client-local storage.
type Store interface {
	// Get returns the value under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
