// Package kv provides the key-value tiers that back the account store.
//
// A tier is a flat string-to-string map. Two tiers are in play at once:
//   - durable: survives restarts (JSON file, SQLite database or macOS Keychain)
//   - session: scoped to one terminal session or one process
//
// The account store only ever addresses a tier through Store, so tests can
// substitute a MemoryStore for either one.
package kv

import "errors"

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("key not found")

// Store is the interface for tier operations.
type Store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	List() ([]string, error)
	Delete(key string) error
	GetMultiple(keys []string) (map[string]string, error)
}

// Pather is implemented by tiers backed by a single file on disk.
// Watchers use it to find the file to observe for cross-process changes.
type Pather interface {
	Path() string
}
