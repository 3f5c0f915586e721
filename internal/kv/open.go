package kv

import (
	"fmt"
	"path/filepath"
)

// File names inside the data directory.
const (
	DurableFile = "accounts.json"
	SQLiteFile  = "molt.db"
)

// Open returns the durable tier for backend rooted at dataDir. Stores that
// hold resources implement io.Closer.
func Open(backend, dataDir string) (Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("no data directory")
	}
	switch backend {
	case "", "file":
		return NewFileStore(filepath.Join(dataDir, DurableFile)), nil
	case "sqlite":
		s, err := OpenSQLite(filepath.Join(dataDir, SQLiteFile))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "keychain":
		return NewSystemStore(filepath.Join(dataDir, DurableFile)), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}
