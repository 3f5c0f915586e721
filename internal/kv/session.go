package kv

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// SessionEnv overrides the detected terminal session id.
const SessionEnv = "MOLT_SESSION"

var (
	sessionIDRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

	// session-<sid>-<leader start>.json, as written for detected sessions.
	sessionFileRe = regexp.MustCompile(`^session-(\d+)-([0-9.]+)\.json$`)
)

// NewSessionStore returns the tier scoped to the current terminal session:
// a private FileStore under dir named after the session id. Opening a new
// terminal yields a new session id and therefore an empty tier. Files left
// behind by sessions that have ended are removed first.
func NewSessionStore(dir string) *FileStore {
	if n, err := PruneSessions(dir); err != nil {
		slog.Warn("session prune failed", "dir", dir, "error", err)
	} else if n > 0 {
		slog.Debug("pruned stale sessions", "dir", dir, "count", n)
	}
	return NewPrivateFileStore(SessionPath(dir, SessionID()))
}

// SessionPath returns the file backing the session tier for id.
func SessionPath(dir, id string) string {
	return filepath.Join(dir, fmt.Sprintf("session-%s.json", sessionIDRe.ReplaceAllString(id, "_")))
}

// SessionID returns the id of the current terminal session. MOLT_SESSION
// takes precedence over the platform session id.
func SessionID() string {
	if id := os.Getenv(SessionEnv); id != "" {
		return id
	}
	return platformSessionID()
}

// PruneSessions deletes session files whose leader process has exited or
// whose pid now belongs to a different process. Files named by MOLT_SESSION
// are never touched. It returns the number of files removed.
func PruneSessions(dir string) (int, error) {
	return pruneSessions(dir, sessionAlive)
}

func pruneSessions(dir string, alive func(sid int, start string) bool) (int, error) {
	if err := CheckPrivateDir(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		m := sessionFileRe.FindStringSubmatch(e.Name())
		if m == nil || !e.Type().IsRegular() {
			continue
		}
		sid, err := strconv.Atoi(m[1])
		if err != nil || alive(sid, m[2]) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
