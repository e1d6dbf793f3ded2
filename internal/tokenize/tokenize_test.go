package tokenize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		tokens    []string
		learnable bool
	}{
		{"plain", "Hello world", []string{"Hello", "world"}, true},
		{"edge punctuation", `"Well," she said... (quietly)!`, []string{"Well", "she", "said", "quietly"}, true},
		{"inner apostrophe kept", "don't stop", []string{"don't", "stop"}, true},
		{"symbols only dropped", "-- *** ?!", []string{}, false},
		{"links dropped", "see https://example.com now", []string{"see", "now"}, true},
		{"command prefix", "/join #room", []string{"join", "room"}, false},
		{"bang prefix", "!speak hi", []string{"speak", "hi"}, false},
		{"empty", "   ", []string{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, learnable := DefaultOptions.Tokenize(tt.input)
			assert.Equal(t, tt.tokens, tokens)
			assert.Equal(t, tt.learnable, learnable)
		})
	}
}

func TestTokenize_MaxTokenLength(t *testing.T) {
	long := strings.Repeat("a", 10)
	opts := Options{MaxTokenLength: 5, MinTokenCount: 1}

	tokens, learnable := opts.Tokenize("tiny " + long)
	assert.Equal(t, []string{"tiny"}, tokens)
	assert.True(t, learnable)

	unlimited := Options{MinTokenCount: 1}
	tokens, _ = unlimited.Tokenize(long)
	assert.Equal(t, []string{long}, tokens)
}

func TestTokenize_MinTokenCount(t *testing.T) {
	opts := Options{MinTokenCount: 3}

	_, learnable := opts.Tokenize("only two")
	assert.False(t, learnable)

	_, learnable = opts.Tokenize("now there are four")
	assert.True(t, learnable)
}
