package store

import (
	"errors"
	"fmt"
)

// Error is a storage failure classified by Code.
//
// Callers branch on the code through the Is* helpers, which see through
// fmt.Errorf wrapping and nested store errors.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the failed operation (e.g. "open", "commit", "lookup ids").
	Op string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes storage errors.
type ErrorCode string

const (
	// CodeStoreUnavailable indicates the store could not be opened or created.
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	// CodeCorrupted indicates a persisted blob failed to decode.
	CodeCorrupted ErrorCode = "CORRUPTED"

	// CodeNotFound indicates an internal id lookup missed.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTransactionFailure indicates a multi-row mutation was aborted.
	CodeTransactionFailure ErrorCode = "TRANSACTION_FAILURE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Op)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// NewCorruptedError wraps a decode failure.
func NewCorruptedError(op string, err error) *Error {
	return newError(CodeCorrupted, op, err)
}

// NewNotFoundError reports ids that an internal lookup expected to exist.
func NewNotFoundError(op string, missing any) *Error {
	return newError(CodeNotFound, op, fmt.Errorf("missing %v", missing))
}

// IsStoreUnavailable reports whether err carries CodeStoreUnavailable.
func IsStoreUnavailable(err error) bool { return hasCode(err, CodeStoreUnavailable) }

// IsCorrupted reports whether err carries CodeCorrupted.
func IsCorrupted(err error) bool { return hasCode(err, CodeCorrupted) }

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsTransactionFailure reports whether err carries CodeTransactionFailure.
func IsTransactionFailure(err error) bool { return hasCode(err, CodeTransactionFailure) }

// hasCode walks every *Error in the chain, not just the outermost one.
func hasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *Error
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}
