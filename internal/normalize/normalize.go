// Package normalize folds token text into the canonical form stored in the
// dictionary and compared against banned substrings.
package normalize

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical returns s trimmed, lower-cased and stripped of combining marks
// (NFD, remove Mn, lower, NFC), so "Café", "CAFE" and "cafe" share one
// canonical text.
func Canonical(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = norm.NFC.String(s)
	}
	return cases.Lower(language.Und).String(folded)
}

// Lines reads a newline-separated list, canonicalizes every line with fn and
// drops blanks and duplicates. Order of first appearance is kept.
func Lines(r io.Reader, fn func(string) string) ([]string, error) {
	seen := make(map[string]bool)
	out := []string{}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := fn(sc.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read list: %w", err)
	}
	return out, nil
}
