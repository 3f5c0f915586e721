package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benaskins/molt/internal/audit"
	"github.com/benaskins/molt/internal/kv"
	"github.com/google/uuid"
)

// maxIDAttempts bounds regeneration when an id generator collides.
const maxIDAttempts = 8

// Store owns the stored accounts, the active pointer and the persistence mode.
// All methods are safe for concurrent use within one process. Other processes
// sharing the durable tier see changes on their next read; last writer wins.
type Store struct {
	mu      sync.Mutex
	durable kv.Store // nil when inert
	session kv.Store
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	audit   *audit.Logger
	actor   string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides account id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger used for degraded reads.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithAudit records account-level actions to log on behalf of actor.
func WithAudit(log *audit.Logger, actor string) Option {
	return func(s *Store) {
		s.audit = log
		s.actor = actor
	}
}

// New builds a Store over the given tiers. A nil durable tier produces an
// inert store. A nil session tier is replaced by process memory.
func New(durable, session kv.Store, opts ...Option) *Store {
	if session == nil {
		session = kv.NewMemoryStore()
	}
	s := &Store{
		durable: durable,
		session: session,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		logger:  slog.With("component", "accounts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInert returns a store with no storage environment.
func NewInert(opts ...Option) *Store {
	return New(nil, nil, opts...)
}

// Inert reports whether the store has no durable tier.
func (s *Store) Inert() bool {
	return s.durable == nil
}

// PersistenceMode returns the current mode. It defaults to ModeSession when
// unset, unreadable or inert.
func (s *Store) PersistenceMode() Mode {
	if s.Inert() {
		return ModeSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modeLocked()
}

// SetPersistenceMode records the mode flag. Existing secrets stay where they are.
func (s *Store) SetPersistenceMode(mode Mode) error {
	if s.Inert() {
		return &EnvironmentError{Op: "set persistence mode"}
	}
	if mode != ModeDurable && mode != ModeSession {
		return fmt.Errorf("unknown persistence mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.durable.Set(KeyMode, string(mode)); err != nil {
		return fmt.Errorf("set persistence mode: %w", err)
	}
	s.record(audit.Entry{Action: audit.ActionModeChange, Detail: string(mode)})
	return nil
}

// SwitchPersistenceMode writes the mode flag and then moves the effective
// credential so it matches the new mode: switching to session mode mirrors
// the active account's key into the session tier, switching to durable mode
// clears the session mirror. With no active account the mirror is cleared.
func (s *Store) SwitchPersistenceMode(mode Mode) error {
	if s.Inert() {
		return &EnvironmentError{Op: "switch persistence mode"}
	}
	if mode != ModeDurable && mode != ModeSession {
		return fmt.Errorf("unknown persistence mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.durable.Set(KeyMode, string(mode)); err != nil {
		return fmt.Errorf("switch persistence mode: %w", err)
	}
	s.record(audit.Entry{Action: audit.ActionModeChange, Detail: string(mode) + " (migrated)"})

	if mode == ModeSession {
		if acct, ok := s.activeAccountLocked(); ok {
			return s.session.Set(KeyAPIKey, acct.Secret)
		}
	}
	return s.session.Delete(KeyAPIKey)
}

// Accounts returns the stored accounts, most recently added first. It never
// returns nil.
func (s *Store) Accounts() []Account {
	if s.Inert() {
		return []Account{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountsLocked()
}

// AddAccount stores a new account and returns it. The label is trimmed and
// defaults to DefaultLabel; the secret is stored as given.
func (s *Store) AddAccount(label, secret string) (Account, error) {
	if s.Inert() {
		return Account{}, &EnvironmentError{Op: "add account"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAccountLocked(label, secret)
}

// RemoveAccount deletes the account with id. Removing an unknown id is a
// no-op. Removing the active account clears the active pointer and the
// session mirror.
func (s *Store) RemoveAccount(id string) error {
	if s.Inert() {
		return &EnvironmentError{Op: "remove account"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.accountsLocked()
	kept := make([]Account, 0, len(list))
	for _, a := range list {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	if err := s.saveAccountsLocked(kept); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	s.record(audit.Entry{Action: audit.ActionAccountRemove, Account: id})

	if activeID, ok := s.activeIDLocked(); ok && activeID == id {
		if err := s.durable.Delete(KeyActiveID); err != nil {
			return fmt.Errorf("clear active account: %w", err)
		}
		if err := s.session.Delete(KeyAPIKey); err != nil {
			return fmt.Errorf("clear session key: %w", err)
		}
	}
	return nil
}

// ActiveAccountID returns the raw active pointer, which may dangle.
func (s *Store) ActiveAccountID() (string, bool) {
	if s.Inert() {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeIDLocked()
}

// SetActiveAccountID points the store at id. In session mode the account's
// key is also mirrored into the session tier. An unknown id is accepted but
// resolves to no active account.
func (s *Store) SetActiveAccountID(id string) error {
	if s.Inert() {
		return &EnvironmentError{Op: "set active account"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setActiveLocked(id)
}

// Activate is SetActiveAccountID for callers that must not leave a dangling
// pointer: an id that is not stored fails with ErrUnknownAccount and nothing
// is written.
func (s *Store) Activate(id string) error {
	if s.Inert() {
		return &EnvironmentError{Op: "activate account"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accountsLocked() {
		if a.ID == id {
			return s.setActiveLocked(id)
		}
	}
	return fmt.Errorf("activate %q: %w", id, ErrUnknownAccount)
}

// ActiveAccount resolves the active pointer against the stored accounts.
func (s *Store) ActiveAccount() (Account, bool) {
	if s.Inert() {
		return Account{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeAccountLocked()
}

// EffectiveCredential returns the key to authenticate API calls with. Each
// call that hands out a key is recorded once as credential_read.
func (s *Store) EffectiveCredential() (string, bool) {
	if s.Inert() {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := s.modeLocked()
	secret, ok := s.effectiveLocked(mode)
	if ok {
		tier := "durable"
		if mode == ModeSession {
			tier = "session"
		}
		id, _ := s.activeIDLocked()
		s.record(audit.Entry{Action: audit.ActionCredentialRead, Account: id, Tier: tier})
	}
	return secret, ok
}

// Connect stores a new account, makes it active and sets the mode from
// remember. Without remember the key is also written to the session tier so
// it is usable at once. Either every effect is applied or, on failure, the
// tiers are restored to their previous values.
func (s *Store) Connect(label, secret string, remember bool) (Account, error) {
	if s.Inert() {
		return Account{}, &EnvironmentError{Op: "connect"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshotLocked()
	if err != nil {
		return Account{}, fmt.Errorf("connect: %w", err)
	}

	mode := ModeSession
	if remember {
		mode = ModeDurable
	}

	acct, err := s.connectLocked(label, secret, mode)
	if err != nil {
		if rerr := snap.restore(s.durable, s.session); rerr != nil {
			s.logger.Error("connect rollback failed", "error", rerr)
		}
		return Account{}, fmt.Errorf("connect: %w", err)
	}
	return acct, nil
}

func (s *Store) connectLocked(label, secret string, mode Mode) (Account, error) {
	if err := s.durable.Set(KeyMode, string(mode)); err != nil {
		return Account{}, err
	}
	acct, err := s.addAccountLocked(label, secret)
	if err != nil {
		return Account{}, err
	}
	if err := s.setActiveLocked(acct.ID); err != nil {
		return Account{}, err
	}
	if mode == ModeSession {
		if err := s.session.Set(KeyAPIKey, secret); err != nil {
			return Account{}, err
		}
	}
	return acct, nil
}

// Teardown wipes every account, the active pointer, the mode flag and the
// session mirror. It is idempotent and a no-op on an inert store.
func (s *Store) Teardown() error {
	if s.Inert() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, key := range []string{KeyAccounts, KeyActiveID, KeyMode} {
		if err := s.durable.Delete(key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.session.Delete(KeyAPIKey); err != nil {
		errs = append(errs, err)
	}
	s.record(audit.Entry{Action: audit.ActionTeardown})
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	return nil
}

// State is a read-only view of the store. It never carries secrets.
type State struct {
	Inert     bool      `json:"inert"`
	Mode      Mode      `json:"mode"`
	Accounts  []Summary `json:"accounts"`
	ActiveID  string    `json:"active_id,omitempty"`
	Connected bool      `json:"connected"`
}

// Summary is an Account without its key.
type Summary struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// Snapshot reads the whole store under one lock. The durable keys are
// fetched in a single tier call so the view is consistent even while
// another process writes.
func (s *Store) Snapshot() State {
	st := State{Inert: s.Inert(), Mode: ModeSession, Accounts: []Summary{}}
	if st.Inert {
		return st
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	vals, err := s.durable.GetMultiple([]string{KeyMode, KeyAccounts, KeyActiveID})
	if err != nil {
		s.logger.Warn("tier read failed", "op", "snapshot", "error", err)
		vals = map[string]string{}
	}
	if Mode(vals[KeyMode]) == ModeDurable {
		st.Mode = ModeDurable
	}

	var active *Account
	list := s.decodeAccounts(vals[KeyAccounts])
	for i, a := range list {
		isActive := vals[KeyActiveID] != "" && a.ID == vals[KeyActiveID]
		if isActive {
			active = &list[i]
			st.ActiveID = a.ID
		}
		st.Accounts = append(st.Accounts, Summary{
			ID:        a.ID,
			Label:     a.Label,
			CreatedAt: a.CreatedAt,
			Active:    isActive,
		})
	}

	if st.Mode == ModeSession {
		v, ok := s.read(s.session, KeyAPIKey)
		st.Connected = ok && v != ""
	} else {
		st.Connected = active != nil && active.Secret != ""
	}
	return st
}

func (s *Store) modeLocked() Mode {
	v, ok := s.read(s.durable, KeyMode)
	if ok && Mode(v) == ModeDurable {
		return ModeDurable
	}
	return ModeSession
}

func (s *Store) accountsLocked() []Account {
	raw, _ := s.read(s.durable, KeyAccounts)
	return s.decodeAccounts(raw)
}

func (s *Store) decodeAccounts(raw string) []Account {
	if raw == "" {
		return []Account{}
	}
	var list []Account
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		s.logger.Warn("corrupt account list, treating as empty", "error", err)
		return []Account{}
	}
	if list == nil {
		return []Account{}
	}
	return list
}

func (s *Store) saveAccountsLocked(list []Account) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return s.durable.Set(KeyAccounts, string(data))
}

func (s *Store) addAccountLocked(label, secret string) (Account, error) {
	list := s.accountsLocked()

	taken := make(map[string]bool, len(list))
	for _, a := range list {
		taken[a.ID] = true
	}
	id := s.newID()
	for i := 0; taken[id] || id == ""; i++ {
		if i >= maxIDAttempts {
			return Account{}, fmt.Errorf("add account: could not generate a unique id")
		}
		id = s.newID()
	}

	acct := Account{
		ID:        id,
		Label:     normalizeLabel(label),
		Secret:    secret,
		CreatedAt: s.now(),
	}
	if err := s.saveAccountsLocked(append([]Account{acct}, list...)); err != nil {
		return Account{}, fmt.Errorf("add account: %w", err)
	}
	s.record(audit.Entry{Action: audit.ActionAccountAdd, Account: acct.ID, Detail: acct.Label})
	return acct, nil
}

func (s *Store) activeIDLocked() (string, bool) {
	v, ok := s.read(s.durable, KeyActiveID)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *Store) setActiveLocked(id string) error {
	if err := s.durable.Set(KeyActiveID, id); err != nil {
		return fmt.Errorf("set active account: %w", err)
	}
	s.record(audit.Entry{Action: audit.ActionAccountActivate, Account: id})

	if s.modeLocked() != ModeSession {
		return nil
	}
	for _, a := range s.accountsLocked() {
		if a.ID == id {
			if err := s.session.Set(KeyAPIKey, a.Secret); err != nil {
				return fmt.Errorf("mirror session key: %w", err)
			}
			break
		}
	}
	return nil
}

func (s *Store) activeAccountLocked() (Account, bool) {
	id, ok := s.activeIDLocked()
	if !ok {
		return Account{}, false
	}
	for _, a := range s.accountsLocked() {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

func (s *Store) effectiveLocked(mode Mode) (string, bool) {
	if mode == ModeSession {
		v, ok := s.read(s.session, KeyAPIKey)
		return v, ok && v != ""
	}
	acct, ok := s.activeAccountLocked()
	if !ok || acct.Secret == "" {
		return "", false
	}
	return acct.Secret, true
}

// read degrades every tier error to "absent". Anything other than a missing
// key is logged.
func (s *Store) read(tier kv.Store, key string) (string, bool) {
	v, err := tier.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Warn("tier read failed", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}

func (s *Store) record(e audit.Entry) {
	if s.audit == nil {
		return
	}
	e.Actor = s.actor
	_ = s.audit.Log(e)
}
