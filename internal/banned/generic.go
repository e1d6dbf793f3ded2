package banned

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/roach88/tyuo/internal/normalize"
)

// GenericList is the engine-wide set of banned substrings. It is built once
// at startup and never mutated, so every context can share it.
type GenericList struct {
	entries []string
}

// NewGenericList canonicalizes entries, dropping blanks and duplicates.
func NewGenericList(entries ...string) *GenericList {
	seen := make(map[string]bool, len(entries))
	g := &GenericList{entries: []string{}}
	for _, e := range entries {
		c := normalize.Canonical(e)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		g.entries = append(g.entries, c)
	}
	return g
}

// LoadGenericList reads a newline-separated list.
func LoadGenericList(r io.Reader) (*GenericList, error) {
	lines, err := normalize.Lines(r, normalize.Canonical)
	if err != nil {
		return nil, fmt.Errorf("load generic bans: %w", err)
	}
	return &GenericList{entries: lines}, nil
}

// LoadGenericFile reads the list at path. An empty path yields an empty list;
// a missing file is an error.
func LoadGenericFile(path string) (*GenericList, error) {
	if path == "" {
		return NewGenericList(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("generic bans file %s does not exist", path)
		}
		return nil, fmt.Errorf("open generic bans: %w", err)
	}
	defer f.Close()
	return LoadGenericList(f)
}

// Entries returns a copy of the canonical substrings.
func (g *GenericList) Entries() []string {
	if g == nil {
		return []string{}
	}
	return append([]string{}, g.entries...)
}

// Len returns the number of substrings.
func (g *GenericList) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Matches reports whether any substring occurs in the canonical text.
func (g *GenericList) Matches(canonical string) bool {
	if g == nil {
		return false
	}
	for _, e := range g.entries {
		if strings.Contains(canonical, e) {
			return true
		}
	}
	return false
}
