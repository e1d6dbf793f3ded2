package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileExtension is appended to a context id to name its database file.
const FileExtension = ".sqlite3"

// FileManager keeps one SQLite file per context under a directory.
//
// FileManager does not validate ids; callers must reject ids that are not
// safe path components.
type FileManager struct {
	dir string
}

// NewFileManager returns a Manager rooted at dir. The directory is created
// on the first Open.
func NewFileManager(dir string) *FileManager {
	return &FileManager{dir: dir}
}

// Dir returns the directory holding the context files.
func (m *FileManager) Dir() string {
	return m.dir
}

// Path returns the database path for id.
func (m *FileManager) Path(id string) string {
	return filepath.Join(m.dir, id+FileExtension)
}

// Open implements Manager.
func (m *FileManager) Open(_ context.Context, id string) (Store, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, newError(CodeStoreUnavailable, "create data dir", err)
	}
	s, err := Open(m.Path(id))
	if err != nil {
		return nil, fmt.Errorf("open context %q: %w", id, err)
	}
	return s, nil
}

// Exists implements Manager.
func (m *FileManager) Exists(id string) (bool, error) {
	_, err := os.Stat(m.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, newError(CodeStoreUnavailable, "stat context", err)
}

// Delete implements Manager. WAL side files are removed with the database.
func (m *FileManager) Delete(id string) error {
	path := m.Path(id)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return newError(CodeStoreUnavailable, "delete context", err)
		}
	}
	return nil
}

// List implements Manager.
func (m *FileManager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, newError(CodeStoreUnavailable, "list contexts", err)
	}

	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, FileExtension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, FileExtension))
	}
	sort.Strings(ids)
	return ids, nil
}
