package kv

import (
	"fmt"

	"github.com/benaskins/molt/internal/audit"
)

// AuditedStore wraps a Store and records every write and delete to the audit
// log. Values are never recorded. Reads pass through unlogged: one store
// operation reads the same key several times, so credential reads are
// recorded by the account store instead.
type AuditedStore struct {
	inner Store
	audit *audit.Logger
	tier  string // "durable" or "session"
	actor string // "cli", "tui" or "api"
}

// NewAuditedStore wraps an existing store with audit logging.
func NewAuditedStore(inner Store, auditLog *audit.Logger, tier, actor string) *AuditedStore {
	return &AuditedStore{
		inner: inner,
		audit: auditLog,
		tier:  tier,
		actor: actor,
	}
}

// Path forwards to the wrapped store when it is file-backed.
func (s *AuditedStore) Path() string {
	if p, ok := s.inner.(Pather); ok {
		return p.Path()
	}
	return ""
}

func (s *AuditedStore) Set(key, value string) error {
	if err := s.inner.Set(key, value); err != nil {
		s.log(audit.ActionKeyWrite, key, err)
		return fmt.Errorf("audited store set: %w", err)
	}
	s.log(audit.ActionKeyWrite, key, nil)
	return nil
}

func (s *AuditedStore) Get(key string) (string, error) {
	val, err := s.inner.Get(key)
	if err != nil {
		return "", fmt.Errorf("audited store get: %w", err)
	}
	return val, nil
}

func (s *AuditedStore) List() ([]string, error) {
	return s.inner.List()
}

func (s *AuditedStore) Delete(key string) error {
	if err := s.inner.Delete(key); err != nil {
		s.log(audit.ActionKeyDelete, key, err)
		return fmt.Errorf("audited store delete: %w", err)
	}
	s.log(audit.ActionKeyDelete, key, nil)
	return nil
}

func (s *AuditedStore) GetMultiple(keys []string) (map[string]string, error) {
	result, err := s.inner.GetMultiple(keys)
	if err != nil {
		return nil, fmt.Errorf("audited store get multiple: %w", err)
	}
	return result, nil
}

// Audit logging is best-effort; a failure to log never blocks the operation.
func (s *AuditedStore) log(action audit.Action, key string, err error) {
	e := audit.Entry{
		Action: action,
		Key:    key,
		Tier:   s.tier,
		Actor:  s.actor,
	}
	if err != nil {
		e.Error = err.Error()
	}
	_ = s.audit.Log(e)
}
