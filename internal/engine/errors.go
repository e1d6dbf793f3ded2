package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrContextDropped is returned by every operation on a handle whose
	// context has been dropped.
	ErrContextDropped = errors.New("context dropped")

	// ErrInvalidContextID is returned for ids that are not safe file names.
	ErrInvalidContextID = errors.New("invalid context id")

	// ErrEngineClosed is returned once Close has been called.
	ErrEngineClosed = errors.New("engine closed")
)

// ContextError attributes a failure to one context and operation.
type ContextError struct {
	// ContextID identifies the affected context.
	ContextID string

	// Op names the failed operation, e.g. "learn".
	Op string

	Err error
}

// Error implements the error interface.
func (e *ContextError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("context %q: %s: %v", e.ContextID, e.Op, e.Err)
	}
	return fmt.Sprintf("context %q: %v", e.ContextID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ContextError) Unwrap() error {
	return e.Err
}

// IsDropped reports whether err stems from an operation on a dropped context.
// Uses errors.Is to handle wrapped errors.
func IsDropped(err error) bool {
	return errors.Is(err, ErrContextDropped)
}

// ContextIDOf returns the context id carried by err, if any.
func ContextIDOf(err error) (string, bool) {
	var ce *ContextError
	if errors.As(err, &ce) {
		return ce.ContextID, true
	}
	return "", false
}

func wrap(id, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ContextError{ContextID: id, Op: op, Err: err}
}
