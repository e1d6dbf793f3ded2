package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	cause := errors.New("bad zlib header")
	err := fmt.Errorf("load node: %w", NewCorruptedError("decode forward node", cause))

	assert.True(t, IsCorrupted(err))
	assert.False(t, IsNotFound(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "load node: CORRUPTED: decode forward node: bad zlib header", err.Error())
}

func TestErrorPredicates_Nested(t *testing.T) {
	inner := NewNotFoundError("lookup ids", []int32{3})
	outer := newError(CodeTransactionFailure, "update", inner)

	assert.True(t, IsTransactionFailure(outer))
	assert.True(t, IsNotFound(outer))
	assert.False(t, IsStoreUnavailable(outer))
	assert.False(t, IsCorrupted(errors.New("plain")))
	assert.False(t, IsCorrupted(nil))
}

func TestError_NoCause(t *testing.T) {
	err := &Error{Code: CodeStoreUnavailable, Op: "open"}
	assert.Equal(t, "STORE_UNAVAILABLE: open", err.Error())
	assert.Nil(t, err.Unwrap())
}
