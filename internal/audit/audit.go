// Package audit provides append-only structured logging for account and
// credential operations.
//
// Every credential access and account change is recorded to an audit log at
// ~/.molt/audit.log as newline-delimited JSON. Values are never logged.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// Action describes what happened.
type Action string

const (
	ActionCredentialRead  Action = "credential_read"
	ActionKeyWrite        Action = "key_write"
	ActionKeyDelete       Action = "key_delete"
	ActionAccountAdd      Action = "account_add"
	ActionAccountRemove   Action = "account_remove"
	ActionAccountActivate Action = "account_activate"
	ActionModeChange      Action = "mode_change"
	ActionTeardown        Action = "teardown"
)

// Entry is a single audit log record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	Key       string    `json:"key,omitempty"`
	Account   string    `json:"account,omitempty"`
	Tier      string    `json:"tier,omitempty"`  // "durable", "session"
	Actor     string    `json:"actor,omitempty"` // "cli", "tui", "api"
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Logger writes audit entries to an append-only file.
type Logger struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{w: f}, nil
}

// Discard returns a Logger that drops every entry.
func Discard() *Logger {
	return &Logger{}
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) error {
	if l == nil || l.w == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	if l == nil || l.w == nil {
		return nil
	}
	return l.w.Close()
}

// Filter selects entries when reading a log back. Zero fields match all.
type Filter struct {
	Account string
	Actions []Action
	Since   time.Time
}

func (f Filter) match(e Entry) bool {
	if f.Account != "" && e.Account != f.Account {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, e.Action) {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// ReadEntries decodes a log, oldest first, keeping entries that match f.
// Lines that do not parse are skipped and counted in bad.
func ReadEntries(r io.Reader, f Filter) (entries []Entry, bad int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if json.Unmarshal(line, &e) != nil || e.Action == "" {
			bad++
			continue
		}
		if f.match(e) {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return entries, bad, fmt.Errorf("reading audit log: %w", err)
	}
	return entries, bad, nil
}

// ReadFile is ReadEntries over the log at path. A missing file has no entries.
func ReadFile(path string, f Filter) ([]Entry, int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("opening audit log: %w", err)
	}
	defer file.Close()
	return ReadEntries(file, f)
}
