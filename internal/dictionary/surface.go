package dictionary

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Surface picks the spelling used when rendering t.
//
// The most frequently observed form wins, ties going to the lexicographically
// smallest. In the sentence-initial slot an upper-case-leading form wins ties
// first, and the result has its first letter title-cased. An empty map falls
// back to the canonical text.
func (t Token) Surface(sentenceInitial bool) string {
	best := t.Text
	var bestCount uint32
	found := false

	for form, n := range t.Forms {
		if !found || beats(form, n, best, bestCount, sentenceInitial) {
			best, bestCount, found = form, n, true
		}
	}

	if sentenceInitial {
		return titleFirst(best)
	}
	return best
}

func beats(form string, n uint32, best string, bestCount uint32, sentenceInitial bool) bool {
	if n != bestCount {
		return n > bestCount
	}
	if sentenceInitial {
		fu, bu := leadingUpper(form), leadingUpper(best)
		if fu != bu {
			return fu
		}
	}
	return form < best
}

func leadingUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r) || unicode.IsTitle(r)
}

func titleFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToTitle(r)) + s[size:]
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
