package accounts

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/benaskins/molt/internal/audit"
	"github.com/benaskins/molt/internal/kv"
)

func newTestStore(t *testing.T) (*Store, *kv.MemoryStore, *kv.MemoryStore) {
	t.Helper()
	durable := kv.NewMemoryStore()
	session := kv.NewMemoryStore()
	n := 0
	s := New(durable, session,
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("acct-%d", n)
		}),
		WithClock(func() time.Time {
			return time.Date(2026, 1, 1, 0, 0, n, 0, time.UTC)
		}),
	)
	return s, durable, session
}

// failingStore fails writes to one key.
type failingStore struct {
	*kv.MemoryStore
	failKey string
}

func (f *failingStore) Set(key, value string) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(key, value)
}

// observe captures everything a reader can see.
type observation struct {
	Mode       Mode
	Accounts   []Account
	ActiveID   string
	HasActive  bool
	Active     Account
	Credential string
	HasCred    bool
}

func observe(s *Store) observation {
	o := observation{Mode: s.PersistenceMode(), Accounts: s.Accounts()}
	o.ActiveID, _ = s.ActiveAccountID()
	o.Active, o.HasActive = s.ActiveAccount()
	o.Credential, o.HasCred = s.EffectiveCredential()
	return o
}

func TestDefaults(t *testing.T) {
	s, _, _ := newTestStore(t)

	if m := s.PersistenceMode(); m != ModeSession {
		t.Errorf("PersistenceMode = %q, want session", m)
	}
	if list := s.Accounts(); list == nil || len(list) != 0 {
		t.Errorf("Accounts = %v, want empty non-nil", list)
	}
	if _, ok := s.ActiveAccount(); ok {
		t.Error("expected no active account")
	}
	if _, ok := s.EffectiveCredential(); ok {
		t.Error("expected no credential")
	}
}

func TestAddAccountMostRecentFirst(t *testing.T) {
	s, _, _ := newTestStore(t)

	for _, label := range []string{"one", "two", "three"} {
		if _, err := s.AddAccount(label, "key-"+label); err != nil {
			t.Fatalf("AddAccount(%s): %v", label, err)
		}
	}

	list := s.Accounts()
	if len(list) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(list))
	}
	labels := []string{list[0].Label, list[1].Label, list[2].Label}
	if !reflect.DeepEqual(labels, []string{"three", "two", "one"}) {
		t.Errorf("expected most-recent-first, got %v", labels)
	}

	seen := map[string]bool{}
	for _, a := range list {
		if seen[a.ID] {
			t.Errorf("duplicate id %q", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestAddAccountDefaultsLabel(t *testing.T) {
	s, _, _ := newTestStore(t)

	tests := []struct {
		in   string
		want string
	}{
		{"", DefaultLabel},
		{"   ", DefaultLabel},
		{"  Bot A  ", "Bot A"},
	}
	for _, tt := range tests {
		acct, err := s.AddAccount(tt.in, "k")
		if err != nil {
			t.Fatalf("AddAccount: %v", err)
		}
		if acct.Label != tt.want {
			t.Errorf("label %q -> %q, want %q", tt.in, acct.Label, tt.want)
		}
	}
}

func TestAddAccountKeepsSecretVerbatim(t *testing.T) {
	s, _, _ := newTestStore(t)

	acct, _ := s.AddAccount("x", "  moltbook_sk_raw \n")
	if acct.Secret != "  moltbook_sk_raw \n" {
		t.Errorf("secret was transformed: %q", acct.Secret)
	}
}

func TestAddAccountRegeneratesCollidingIDs(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	s := New(kv.NewMemoryStore(), nil, WithIDGenerator(func() string {
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}))

	a, _ := s.AddAccount("a", "1")
	b, err := s.AddAccount("b", "2")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if a.ID != "dup" || b.ID != "fresh" {
		t.Errorf("ids = %q, %q; want dup, fresh", a.ID, b.ID)
	}
}

func TestAddAccountGivesUpOnConstantGenerator(t *testing.T) {
	s := New(kv.NewMemoryStore(), nil, WithIDGenerator(func() string { return "same" }))

	if _, err := s.AddAccount("a", "1"); err != nil {
		t.Fatalf("first AddAccount: %v", err)
	}
	if _, err := s.AddAccount("b", "2"); err == nil {
		t.Error("expected error when no unique id can be generated")
	}
	if n := len(s.Accounts()); n != 1 {
		t.Errorf("expected 1 account, got %d", n)
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	s, _, _ := newTestStore(t)

	a, _ := s.AddAccount("a", "1")
	s.SetActiveAccountID(a.ID)
	before := observe(s)

	if err := s.RemoveAccount("missing"); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	if after := observe(s); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRemoveInactiveKeepsActive(t *testing.T) {
	s, _, _ := newTestStore(t)

	a, _ := s.AddAccount("a", "1")
	b, _ := s.AddAccount("b", "2")
	s.SetActiveAccountID(a.ID)

	if err := s.RemoveAccount(b.ID); err != nil {
		t.Fatalf("RemoveAccount: %v", err)
	}
	active, ok := s.ActiveAccount()
	if !ok || active.ID != a.ID {
		t.Errorf("expected %s to stay active, got %+v", a.ID, active)
	}
	if cred, _ := s.EffectiveCredential(); cred != "1" {
		t.Errorf("credential = %q, want 1", cred)
	}
}

func TestRemoveActiveClearsPointerAndMirror(t *testing.T) {
	for _, remember := range []bool{false, true} {
		t.Run(fmt.Sprintf("remember=%v", remember), func(t *testing.T) {
			s, _, session := newTestStore(t)

			acct, err := s.Connect("Bot", "secret", remember)
			if err != nil {
				t.Fatalf("Connect: %v", err)
			}
			if err := s.RemoveAccount(acct.ID); err != nil {
				t.Fatalf("RemoveAccount: %v", err)
			}

			if _, ok := s.ActiveAccount(); ok {
				t.Error("expected no active account")
			}
			if _, ok := s.ActiveAccountID(); ok {
				t.Error("expected active pointer cleared")
			}
			if _, ok := s.EffectiveCredential(); ok {
				t.Error("expected no credential")
			}
			if _, err := session.Get(KeyAPIKey); !errors.Is(err, kv.ErrNotFound) {
				t.Errorf("expected session mirror cleared, got %v", err)
			}
		})
	}
}

func TestDanglingActivePointer(t *testing.T) {
	s, _, session := newTestStore(t)

	s.AddAccount("a", "1")
	if err := s.SetActiveAccountID("ghost"); err != nil {
		t.Fatalf("SetActiveAccountID: %v", err)
	}

	if id, ok := s.ActiveAccountID(); !ok || id != "ghost" {
		t.Errorf("ActiveAccountID = %q, %v; want ghost", id, ok)
	}
	if _, ok := s.ActiveAccount(); ok {
		t.Error("dangling pointer must resolve to no active account")
	}
	if _, err := session.Get(KeyAPIKey); !errors.Is(err, kv.ErrNotFound) {
		t.Error("unknown id must not write a session mirror")
	}
}

func TestActivateRejectsUnknown(t *testing.T) {
	s, _, session := newTestStore(t)
	a, _ := s.Connect("Bot A", "secret-a", false)

	err := s.Activate("ghost")
	if !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("Activate unknown: err = %v, want ErrUnknownAccount", err)
	}
	if id, _ := s.ActiveAccountID(); id != a.ID {
		t.Errorf("active pointer = %q, want %q", id, a.ID)
	}
	if v, _ := session.Get(KeyAPIKey); v != "secret-a" {
		t.Errorf("session mirror = %q, want secret-a", v)
	}
}

func TestActivateKnown(t *testing.T) {
	s, _, session := newTestStore(t)
	s.Connect("Bot A", "secret-a", false)
	b, _ := s.AddAccount("Bot B", "secret-b")

	if err := s.Activate(b.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if active, ok := s.ActiveAccount(); !ok || active.ID != b.ID {
		t.Errorf("active = %+v, %v; want %s", active, ok, b.ID)
	}
	if v, _ := session.Get(KeyAPIKey); v != "secret-b" {
		t.Errorf("session mirror = %q, want secret-b", v)
	}
	if err := NewInert().Activate(b.ID); !errors.Is(err, ErrNoEnvironment) {
		t.Errorf("inert Activate: err = %v, want ErrNoEnvironment", err)
	}
}

func TestSetActiveMirrorsInSessionModeOnly(t *testing.T) {
	s, _, session := newTestStore(t)

	a, _ := s.AddAccount("a", "key-a")
	b, _ := s.AddAccount("b", "key-b")

	s.SetPersistenceMode(ModeSession)
	s.SetActiveAccountID(a.ID)
	if v, _ := session.Get(KeyAPIKey); v != "key-a" {
		t.Errorf("session mirror = %q, want key-a", v)
	}

	s.SetPersistenceMode(ModeDurable)
	s.SetActiveAccountID(b.ID)
	if v, _ := session.Get(KeyAPIKey); v != "key-a" {
		t.Errorf("durable mode must not touch the mirror, got %q", v)
	}
	if cred, _ := s.EffectiveCredential(); cred != "key-b" {
		t.Errorf("credential = %q, want key-b", cred)
	}
}

func TestConnectWithoutRemember(t *testing.T) {
	s, _, _ := newTestStore(t)

	if _, err := s.Connect("Bot A", "secret-1", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if m := s.PersistenceMode(); m != ModeSession {
		t.Errorf("mode = %q, want session", m)
	}
	if cred, ok := s.EffectiveCredential(); !ok || cred != "secret-1" {
		t.Errorf("credential = %q, %v; want secret-1", cred, ok)
	}
	active, ok := s.ActiveAccount()
	if !ok || active.Label != "Bot A" {
		t.Errorf("active = %+v, %v; want Bot A", active, ok)
	}
}

func TestConnectWithRemember(t *testing.T) {
	s, _, session := newTestStore(t)

	if _, err := s.Connect("Bot B", "secret-2", true); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if m := s.PersistenceMode(); m != ModeDurable {
		t.Errorf("mode = %q, want local", m)
	}
	if cred, ok := s.EffectiveCredential(); !ok || cred != "secret-2" {
		t.Errorf("credential = %q, %v; want secret-2", cred, ok)
	}
	if _, err := session.Get(KeyAPIKey); !errors.Is(err, kv.ErrNotFound) {
		t.Error("remembered connect must not write the session mirror")
	}
}

func TestConnectRollsBackOnFailure(t *testing.T) {
	durable := kv.NewMemoryStore()
	session := &failingStore{MemoryStore: kv.NewMemoryStore(), failKey: KeyAPIKey}
	s := New(durable, session)

	if _, err := s.Connect("first", "k1", true); err != nil {
		t.Fatalf("Connect remember: %v", err)
	}
	before := observe(s)

	if _, err := s.Connect("second", "k2", false); err == nil {
		t.Fatal("expected connect to fail")
	}
	if after := observe(s); !reflect.DeepEqual(before, after) {
		t.Errorf("failed connect left partial state:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestSetPersistenceModeDoesNotMigrate(t *testing.T) {
	s, _, session := newTestStore(t)

	s.Connect("Bot", "secret", false)
	if err := s.SetPersistenceMode(ModeDurable); err != nil {
		t.Fatalf("SetPersistenceMode: %v", err)
	}
	if v, _ := session.Get(KeyAPIKey); v != "secret" {
		t.Errorf("flag write must leave the mirror alone, got %q", v)
	}
}

func TestSetPersistenceModeRejectsUnknown(t *testing.T) {
	s, _, _ := newTestStore(t)
	if err := s.SetPersistenceMode(Mode("cloud")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestSwitchPersistenceModeMigrates(t *testing.T) {
	s, _, session := newTestStore(t)

	s.Connect("Bot", "secret", true)

	if err := s.SwitchPersistenceMode(ModeSession); err != nil {
		t.Fatalf("Switch to session: %v", err)
	}
	if cred, ok := s.EffectiveCredential(); !ok || cred != "secret" {
		t.Errorf("after switch to session: %q, %v", cred, ok)
	}

	if err := s.SwitchPersistenceMode(ModeDurable); err != nil {
		t.Fatalf("Switch to durable: %v", err)
	}
	if _, err := session.Get(KeyAPIKey); !errors.Is(err, kv.ErrNotFound) {
		t.Error("switch to durable must clear the session mirror")
	}
	if cred, ok := s.EffectiveCredential(); !ok || cred != "secret" {
		t.Errorf("after switch to durable: %q, %v", cred, ok)
	}
}

func TestSwitchToSessionWithoutActiveClearsStaleMirror(t *testing.T) {
	s, _, session := newTestStore(t)

	session.Set(KeyAPIKey, "stale")
	if err := s.SwitchPersistenceMode(ModeSession); err != nil {
		t.Fatalf("SwitchPersistenceMode: %v", err)
	}
	if _, ok := s.EffectiveCredential(); ok {
		t.Error("expected stale mirror to be cleared")
	}
}

func TestTeardownRestoresVirginState(t *testing.T) {
	fresh, _, _ := newTestStore(t)
	want := observe(fresh)

	s, _, _ := newTestStore(t)
	s.Connect("a", "1", true)
	s.Connect("b", "2", false)
	s.AddAccount("c", "3")
	s.SetActiveAccountID("ghost")

	if err := s.Teardown(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	once := observe(s)
	if !reflect.DeepEqual(once, want) {
		t.Errorf("after teardown %+v, want %+v", once, want)
	}

	if err := s.Teardown(); err != nil {
		t.Fatalf("second Teardown: %v", err)
	}
	if twice := observe(s); !reflect.DeepEqual(twice, once) {
		t.Errorf("teardown not idempotent: %+v vs %+v", twice, once)
	}
}

func TestInertStore(t *testing.T) {
	s := NewInert()

	if !s.Inert() {
		t.Fatal("expected inert store")
	}
	if m := s.PersistenceMode(); m != ModeSession {
		t.Errorf("mode = %q, want session", m)
	}
	if list := s.Accounts(); len(list) != 0 {
		t.Errorf("expected no accounts, got %v", list)
	}
	if _, ok := s.EffectiveCredential(); ok {
		t.Error("expected no credential")
	}

	writes := map[string]error{}
	_, writes["add"] = s.AddAccount("a", "1")
	_, writes["connect"] = s.Connect("a", "1", true)
	writes["remove"] = s.RemoveAccount("a")
	writes["set active"] = s.SetActiveAccountID("a")
	writes["set mode"] = s.SetPersistenceMode(ModeDurable)
	writes["switch mode"] = s.SwitchPersistenceMode(ModeDurable)
	for op, err := range writes {
		if !errors.Is(err, ErrNoEnvironment) {
			t.Errorf("%s: expected ErrNoEnvironment, got %v", op, err)
		}
		var envErr *EnvironmentError
		if !errors.As(err, &envErr) {
			t.Errorf("%s: expected *EnvironmentError, got %T", op, err)
		}
	}

	if err := s.Teardown(); err != nil {
		t.Errorf("Teardown on inert store: %v", err)
	}
}

func TestCorruptAccountListReadsEmpty(t *testing.T) {
	s, durable, _ := newTestStore(t)

	durable.Set(KeyAccounts, "{broken")
	durable.Set(KeyActiveID, "acct-1")

	if list := s.Accounts(); len(list) != 0 {
		t.Errorf("expected empty list, got %v", list)
	}
	if _, ok := s.ActiveAccount(); ok {
		t.Error("expected no active account")
	}
}

func TestUnknownModeValueReadsAsSession(t *testing.T) {
	s, durable, _ := newTestStore(t)

	durable.Set(KeyMode, "cloud")
	if m := s.PersistenceMode(); m != ModeSession {
		t.Errorf("mode = %q, want session", m)
	}
}

func TestSnapshotOmitsSecrets(t *testing.T) {
	s, _, _ := newTestStore(t)

	a, _ := s.Connect("Bot A", "secret-1", true)
	s.AddAccount("Bot B", "secret-2")

	st := s.Snapshot()
	if st.Inert || st.Mode != ModeDurable || !st.Connected {
		t.Errorf("unexpected state %+v", st)
	}
	if st.ActiveID != a.ID {
		t.Errorf("ActiveID = %q, want %q", st.ActiveID, a.ID)
	}
	if len(st.Accounts) != 2 || st.Accounts[0].Label != "Bot B" || !st.Accounts[1].Active {
		t.Errorf("unexpected accounts %+v", st.Accounts)
	}
}

// countingStore counts single-key reads and batch reads.
type countingStore struct {
	*kv.MemoryStore
	gets, batches int
	batchErr      error
}

func (c *countingStore) Get(key string) (string, error) {
	c.gets++
	return c.MemoryStore.Get(key)
}

func (c *countingStore) GetMultiple(keys []string) (map[string]string, error) {
	c.batches++
	if c.batchErr != nil {
		return nil, c.batchErr
	}
	return c.MemoryStore.GetMultiple(keys)
}

func TestSnapshotReadsDurableTierOnce(t *testing.T) {
	durable := &countingStore{MemoryStore: kv.NewMemoryStore()}
	s := New(durable, kv.NewMemoryStore())
	a, _ := s.Connect("Bot A", "secret-1", false)
	durable.gets, durable.batches = 0, 0

	st := s.Snapshot()
	if durable.batches != 1 || durable.gets != 0 {
		t.Errorf("snapshot made %d batch reads and %d single reads, want 1 and 0", durable.batches, durable.gets)
	}
	if st.Mode != ModeSession || !st.Connected || st.ActiveID != a.ID {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestSnapshotDanglingPointer(t *testing.T) {
	s, durable, _ := newTestStore(t)
	s.Connect("Bot", "secret", true)
	durable.Set(KeyActiveID, "gone")

	st := s.Snapshot()
	if st.ActiveID != "" || st.Connected {
		t.Errorf("dangling pointer resolved: %+v", st)
	}
	for _, a := range st.Accounts {
		if a.Active {
			t.Errorf("account %s marked active", a.ID)
		}
	}
}

func TestConnectAbortsWhenSnapshotFails(t *testing.T) {
	durable := &countingStore{MemoryStore: kv.NewMemoryStore(), batchErr: errors.New("locked")}
	s := New(durable, kv.NewMemoryStore())

	if _, err := s.Connect("Bot", "secret", true); err == nil {
		t.Fatal("expected connect to fail")
	}
	if keys, _ := durable.List(); len(keys) != 0 {
		t.Errorf("durable tier written despite failed snapshot: %v", keys)
	}
}

func TestCredentialReadAuditedOncePerCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := audit.NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	s := New(kv.NewMemoryStore(), kv.NewMemoryStore(), WithAudit(log, "cli"))
	a, _ := s.Connect("Bot", "secret", true)

	s.Snapshot()
	s.Accounts()
	s.ActiveAccount()
	if _, ok := s.EffectiveCredential(); !ok {
		t.Fatal("expected a credential")
	}

	reads, _, err := audit.ReadFile(path, audit.Filter{Actions: []audit.Action{audit.ActionCredentialRead}})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(reads) != 1 {
		t.Fatalf("got %d credential_read entries, want 1", len(reads))
	}
	if e := reads[0]; e.Account != a.ID || e.Tier != "durable" || e.Actor != "cli" {
		t.Errorf("unexpected entry %+v", e)
	}

	s.SwitchPersistenceMode(ModeSession)
	s.EffectiveCredential()
	reads, _, _ = audit.ReadFile(path, audit.Filter{Actions: []audit.Action{audit.ActionCredentialRead}})
	if len(reads) != 2 || reads[1].Tier != "session" {
		t.Errorf("session read not recorded once: %+v", reads)
	}
}

func TestCredentialReadNotAuditedWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := audit.NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	s := New(kv.NewMemoryStore(), kv.NewMemoryStore(), WithAudit(log, "cli"))
	if _, ok := s.EffectiveCredential(); ok {
		t.Fatal("empty store handed out a credential")
	}
	reads, _, _ := audit.ReadFile(path, audit.Filter{Actions: []audit.Action{audit.ActionCredentialRead}})
	if len(reads) != 0 {
		t.Errorf("got %d credential_read entries, want 0", len(reads))
	}
}

func TestFileTiersSharedAcrossStores(t *testing.T) {
	dir := t.TempDir()
	durablePath := filepath.Join(dir, "durable.json")

	tab1 := New(kv.NewFileStore(durablePath), kv.NewFileStore(filepath.Join(dir, "session-1.json")))
	tab2 := New(kv.NewFileStore(durablePath), kv.NewFileStore(filepath.Join(dir, "session-2.json")))

	if _, err := tab1.Connect("Bot", "secret", false); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if n := len(tab2.Accounts()); n != 1 {
		t.Errorf("second tab sees %d accounts, want 1", n)
	}
	if _, ok := tab2.EffectiveCredential(); ok {
		t.Error("session mirror must not leak into another tab")
	}
	if cred, _ := tab1.EffectiveCredential(); cred != "secret" {
		t.Errorf("first tab credential = %q, want secret", cred)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"local", ModeDurable, true},
		{"Durable", ModeDurable, true},
		{"session", ModeSession, true},
		{" tab ", ModeSession, true},
		{"cloud", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMode(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRedacted(t *testing.T) {
	a := Account{Secret: "moltbook_sk_abcd1234"}
	if got := a.Redacted(); got != "********1234" {
		t.Errorf("Redacted = %q", got)
	}
	short := Account{Secret: "abc"}
	if got := short.Redacted(); got != "***" {
		t.Errorf("Redacted short = %q", got)
	}
	long := Account{Secret: "moltbook_sk_" + strings.Repeat("x", 40) + "9876"}
	if got := long.Redacted(); got != "********9876" {
		t.Errorf("Redacted long = %q, want the same mask width as a short key", got)
	}
}
