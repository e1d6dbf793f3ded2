package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "reverse", Reverse.String())
	assert.Equal(t, "direction(7)", Direction(7).String())
}

func TestDirectionValid(t *testing.T) {
	assert.True(t, Forward.Valid())
	assert.True(t, Reverse.Valid())
	assert.False(t, Direction(-1).Valid())
}

func TestTokenIDBounds(t *testing.T) {
	assert.Equal(t, int32(-2147483648), int32(MinTokenID))
	assert.Equal(t, int32(2147483647), int32(MaxTokenID))
}
