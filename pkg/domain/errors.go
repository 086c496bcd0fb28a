package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("state not found")

	// ErrScopeUnsupported is returned when the supplied scope cannot hold records.
	ErrScopeUnsupported = errors.New("scope does not support persistence")

	// ErrBrokenChain is returned when a parent chain is cyclic or too deep.
	ErrBrokenChain = errors.New("broken parent chain")

	// ErrUnsupported is returned by optional capabilities a store does not offer.
	ErrUnsupported = errors.New("operation not supported")
)

// NotFoundError reports a handle that does not resolve to a stored record.
// A stale or forged handle is never treated as a fresh flow.
type NotFoundError struct {
	Handle string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("state %q not found", e.Handle)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StoreError reports a failed StateStore operation.
type StoreError struct {
	Op     string
	Handle string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Handle != "" {
		return fmt.Sprintf("store %s %q: %v", e.Op, e.Handle, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// HandlerError reports a failure raised by a stage of a handler chain that no
// error stage recovered from.
type HandlerError struct {
	Flow  string
	Stage string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("flow %q stage %s: %v", e.Flow, e.Stage, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
