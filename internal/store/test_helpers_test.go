package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a SQLite store in a per-test temp dir.
func createTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite3")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends lists every Store implementation the contract tests run against.
func backends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"sqlite": func(t *testing.T) Store { return createTestStore(t) },
		"memory": func(t *testing.T) Store { return NewMemory() },
	}
}
