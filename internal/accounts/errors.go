package accounts

import (
	"errors"
	"fmt"
)

// ErrNoEnvironment reports that no durable tier is available, e.g. when the
// store was built without one. Callers should degrade to "not connected".
var ErrNoEnvironment = errors.New("no storage environment available")

// ErrUnknownAccount is returned by Activate for an id that is not stored.
var ErrUnknownAccount = errors.New("unknown account")

// EnvironmentError is returned by writes on an inert store.
type EnvironmentError struct {
	Op string
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrNoEnvironment)
}

// Is lets errors.Is match ErrNoEnvironment.
func (e *EnvironmentError) Is(target error) bool {
	return target == ErrNoEnvironment
}
