// Package tokenize splits raw input into the token strings the engine learns
// from and seeds generation with.
package tokenize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options controls which tokens survive and when input is learnable.
type Options struct {
	// MaxTokenLength drops tokens longer than this many runes; 0 disables the limit.
	MaxTokenLength int
	// MinTokenCount is the number of surviving tokens required for input to be learnable.
	MinTokenCount int
}

// DefaultOptions mirrors the configuration defaults.
var DefaultOptions = Options{MaxTokenLength: 64, MinTokenCount: 1}

// Tokenize splits input on whitespace and trims punctuation from the edges of
// every word, keeping the observed capitalization. Words with no letter or
// digit, links and over-long words are dropped.
//
// Input starting with a command prefix ('/' or '!') is never learnable.
func (o Options) Tokenize(input string) (tokens []string, learnable bool) {
	tokens = []string{}
	for _, field := range strings.Fields(input) {
		if strings.Contains(field, "://") {
			continue
		}
		word := strings.TrimFunc(field, isEdge)
		if word == "" || !hasWordRune(word) {
			continue
		}
		if o.MaxTokenLength > 0 && utf8.RuneCountInString(word) > o.MaxTokenLength {
			continue
		}
		tokens = append(tokens, word)
	}

	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "!") {
		return tokens, false
	}
	return tokens, len(tokens) > 0 && len(tokens) >= o.MinTokenCount
}

func isEdge(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
