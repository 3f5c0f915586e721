// Package accounts is the client-side credential store for Moltbook agents.
//
// It keeps zero or more accounts (label + API key), tracks which one is
// active, and decides which tier holds the credential actually used for API
// calls:
//   - durable mode ("local"): the active account's key, read from the durable tier
//   - session mode ("session"): the key mirrored into the session tier
//
// A Store built without a durable tier is inert: every read returns an empty
// result and every write fails with an *EnvironmentError.
package accounts

import (
	"strings"
	"time"
)

// Mode selects which tier is authoritative for the effective credential.
type Mode string

const (
	ModeDurable Mode = "local"
	ModeSession Mode = "session"
)

// ParseMode accepts the stored values and a few aliases used on the command line.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "durable", "remember":
		return ModeDurable, true
	case "session", "tab", "tab-scoped":
		return ModeSession, true
	}
	return "", false
}

// DefaultLabel is used when an account is added with a blank label.
const DefaultLabel = "Agent"

// Storage keys. They are shared with other processes reading the same tiers.
const (
	KeyMode     = "moltbook_storage_mode"
	KeyAccounts = "moltbook_accounts"
	KeyActiveID = "moltbook_active_account_id"
	KeyAPIKey   = "moltbook_api_key"
)

// Account is one stored agent credential.
type Account struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Secret    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Redacted returns eight asterisks followed by the last four characters of the
// key, so the mask does not reveal its length. Keys of four characters or
// fewer are masked entirely.
func (a Account) Redacted() string {
	if len(a.Secret) <= 4 {
		return strings.Repeat("*", len(a.Secret))
	}
	return strings.Repeat("*", 8) + a.Secret[len(a.Secret)-4:]
}

func normalizeLabel(label string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	return DefaultLabel
}
