package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tyuo/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Empty file (never opened by tyuo)
// 1 - Dictionary, banned list and both transition tables
const currentSchemaVersion = 1

// TokenRow is one dictionary row. Forms is nil when the column is NULL.
type TokenRow struct {
	ID          ir.TokenID
	Text        string
	Occurrences uint32
	Forms       []byte
}

// BannedRow is one banned substring, with the id of the dictionary row whose
// text equals it when such a row exists.
type BannedRow struct {
	Text    string
	TokenID ir.TokenID
	Linked  bool
}

// Reader is the read half of a store. Reads issued through a Tx observe that
// transaction's own writes.
type Reader interface {
	// TokensByText returns the rows whose canonical text is in texts, ordered by id.
	TokensByText(ctx context.Context, texts []string) ([]TokenRow, error)
	// TokensByID returns the rows whose id is in ids, ordered by id.
	TokensByID(ctx context.Context, ids []ir.TokenID) ([]TokenRow, error)
	// TokensContaining returns rows whose text contains any non-empty substring.
	TokensContaining(ctx context.Context, substrings []string) ([]ir.TokenRef, error)
	// RandomTokens returns up to count rows chosen uniformly.
	RandomTokens(ctx context.Context, count int) ([]ir.TokenRef, error)
	// MaxTokenID returns the highest assigned id; ok is false for an empty dictionary.
	MaxTokenID(ctx context.Context) (id ir.TokenID, ok bool, err error)
	// CountTokens returns the number of dictionary rows.
	CountTokens(ctx context.Context) (int, error)
	// Banned returns banned rows ordered by text, restricted to texts when given.
	Banned(ctx context.Context, texts ...string) ([]BannedRow, error)
	// Nodes returns the raw adjacency blobs for the ids that have one.
	Nodes(ctx context.Context, dir ir.Direction, ids []ir.TokenID) (map[ir.TokenID][]byte, error)
	// CountNodes returns the number of persisted nodes in one direction.
	CountNodes(ctx context.Context, dir ir.Direction) (int, error)
	// NodeIDs returns the source id of every persisted node in one direction,
	// ascending.
	NodeIDs(ctx context.Context, dir ir.Direction) ([]ir.TokenID, error)
}

// Writer is the write half of a store, only reachable inside Update.
type Writer interface {
	// PutTokens inserts or replaces dictionary rows by id.
	PutTokens(ctx context.Context, rows []TokenRow) error
	// ClearForms sets the capitalization blob of the given ids to NULL.
	ClearForms(ctx context.Context, ids []ir.TokenID) error
	// PutBanned inserts banned texts, ignoring ones already present.
	PutBanned(ctx context.Context, texts []string) error
	// DeleteBanned removes banned texts, ignoring ones not present.
	DeleteBanned(ctx context.Context, texts []string) error
	// PutNode inserts or replaces one adjacency blob.
	PutNode(ctx context.Context, dir ir.Direction, id ir.TokenID, blob []byte) error
	// DeleteNode removes one adjacency blob if present.
	DeleteNode(ctx context.Context, dir ir.Direction, id ir.TokenID) error
}

// Tx is a transaction handle passed to Update callbacks.
type Tx interface {
	Reader
	Writer
}

// Store is one context's persisted state.
type Store interface {
	Reader

	// Update runs fn in a single transaction. If fn or the commit fails,
	// nothing fn wrote is visible afterwards.
	Update(ctx context.Context, fn func(Tx) error) error

	Close() error
}

// Manager maps context ids to stores.
type Manager interface {
	// Open opens the store for id, creating it when absent.
	Open(ctx context.Context, id string) (Store, error)
	// Exists reports whether a store for id has been created.
	Exists(id string) (bool, error)
	// Delete removes the store for id. Deleting an absent store is not an error.
	Delete(id string) error
	// List returns the ids of every existing store, sorted.
	List() ([]string, error)
}

// SQLite is a Store backed by one SQLite file.
type SQLite struct {
	sqlReader
	db   *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Failures are reported as CodeStoreUnavailable.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, newError(CodeStoreUnavailable, "open", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, newError(CodeStoreUnavailable, "connect", err)
	}

	// SQLite only supports one writer at a time; pragmas are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, newError(CodeStoreUnavailable, "apply pragmas", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, newError(CodeStoreUnavailable, "apply schema", err)
	}

	return newSQLite(db, path), nil
}

func newSQLite(db *sql.DB, path string) *SQLite {
	return &SQLite{sqlReader: sqlReader{q: db}, db: db, path: path}
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Update implements Store.
func (s *SQLite) Update(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newError(CodeTransactionFailure, "begin", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{sqlReader: sqlReader{q: tx}}); err != nil {
		if hasAnyCode(err) {
			return err
		}
		return newError(CodeTransactionFailure, "update", err)
	}

	if err := tx.Commit(); err != nil {
		return newError(CodeTransactionFailure, "commit", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

func hasAnyCode(err error) bool {
	var se *Error
	return errors.As(err, &se)
}
