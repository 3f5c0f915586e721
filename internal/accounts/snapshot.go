package accounts

import (
	"errors"

	"github.com/benaskins/molt/internal/kv"
)

// tierSnapshot captures the keys Connect touches so a failed connect can be
// rolled back.
type tierSnapshot struct {
	durable map[string]string
	session map[string]string
}

var durableKeys = []string{KeyMode, KeyAccounts, KeyActiveID}

func (s *Store) snapshotLocked() (tierSnapshot, error) {
	durable, err := s.durable.GetMultiple(durableKeys)
	if err != nil {
		return tierSnapshot{}, err
	}
	snap := tierSnapshot{
		durable: durable,
		session: make(map[string]string),
	}
	if v, err := s.session.Get(KeyAPIKey); err == nil {
		snap.session[KeyAPIKey] = v
	}
	return snap, nil
}

func (snap tierSnapshot) restore(durable, session kv.Store) error {
	var errs []error
	for _, k := range durableKeys {
		errs = append(errs, restoreKey(durable, k, snap.durable))
	}
	errs = append(errs, restoreKey(session, KeyAPIKey, snap.session))
	return errors.Join(errs...)
}

func restoreKey(tier kv.Store, key string, saved map[string]string) error {
	if v, ok := saved[key]; ok {
		return tier.Set(key, v)
	}
	return tier.Delete(key)
}
