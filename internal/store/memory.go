package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/tyuo/internal/ir"
)

var errClosed = errors.New("store is closed")

// MemoryManager is an in-process Manager whose stores vanish with the process.
type MemoryManager struct {
	mu     sync.Mutex
	stores map[string]*memData

	// FailOpen, when set, makes Open fail with CodeStoreUnavailable.
	FailOpen bool
}

// NewMemoryManager returns an empty MemoryManager.
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{stores: make(map[string]*memData)}
}

// Open implements Manager.
func (m *MemoryManager) Open(_ context.Context, id string) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailOpen {
		return nil, newError(CodeStoreUnavailable, "open", fmt.Errorf("context %q", id))
	}
	data, ok := m.stores[id]
	if !ok {
		data = &memData{state: newMemState()}
		m.stores[id] = data
	}
	return &Memory{data: data}, nil
}

// Exists implements Manager.
func (m *MemoryManager) Exists(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stores[id]
	return ok, nil
}

// Delete implements Manager.
func (m *MemoryManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, id)
	return nil
}

// List implements Manager.
func (m *MemoryManager) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.stores))
	for id := range m.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// NewMemory returns a standalone in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: &memData{state: newMemState()}}
}

type memData struct {
	mu    sync.RWMutex
	state *memState
}

// Memory is a Store kept in maps. Update works on a copy of the state and
// swaps it in only when the callback succeeds.
type Memory struct {
	data   *memData
	closed bool

	// FailCommit, when set, makes every Update fail after running its callback.
	FailCommit bool
}

func (m *Memory) read(fn func(s *memState) error) error {
	if m.closed {
		return newError(CodeStoreUnavailable, "read", errClosed)
	}
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return fn(m.data.state)
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if m.closed {
		return newError(CodeTransactionFailure, "begin", errClosed)
	}
	m.data.mu.Lock()
	defer m.data.mu.Unlock()

	draft := m.data.state.clone()
	if err := fn(draft); err != nil {
		if hasAnyCode(err) {
			return err
		}
		return newError(CodeTransactionFailure, "update", err)
	}
	if m.FailCommit {
		return newError(CodeTransactionFailure, "commit", errors.New("injected commit failure"))
	}
	m.data.state = draft
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.closed = true
	return nil
}

// TokensByText implements Reader.
func (m *Memory) TokensByText(ctx context.Context, texts []string) (rows []TokenRow, err error) {
	err = m.read(func(s *memState) error { rows, err = s.TokensByText(ctx, texts); return err })
	return rows, err
}

// TokensByID implements Reader.
func (m *Memory) TokensByID(ctx context.Context, ids []ir.TokenID) (rows []TokenRow, err error) {
	err = m.read(func(s *memState) error { rows, err = s.TokensByID(ctx, ids); return err })
	return rows, err
}

// TokensContaining implements Reader.
func (m *Memory) TokensContaining(ctx context.Context, substrings []string) (refs []ir.TokenRef, err error) {
	err = m.read(func(s *memState) error { refs, err = s.TokensContaining(ctx, substrings); return err })
	return refs, err
}

// RandomTokens implements Reader.
func (m *Memory) RandomTokens(ctx context.Context, count int) (refs []ir.TokenRef, err error) {
	err = m.read(func(s *memState) error { refs, err = s.RandomTokens(ctx, count); return err })
	return refs, err
}

// MaxTokenID implements Reader.
func (m *Memory) MaxTokenID(ctx context.Context) (id ir.TokenID, ok bool, err error) {
	err = m.read(func(s *memState) error { id, ok, err = s.MaxTokenID(ctx); return err })
	return id, ok, err
}

// CountTokens implements Reader.
func (m *Memory) CountTokens(ctx context.Context) (n int, err error) {
	err = m.read(func(s *memState) error { n, err = s.CountTokens(ctx); return err })
	return n, err
}

// Banned implements Reader.
func (m *Memory) Banned(ctx context.Context, texts ...string) (rows []BannedRow, err error) {
	err = m.read(func(s *memState) error { rows, err = s.Banned(ctx, texts...); return err })
	return rows, err
}

// Nodes implements Reader.
func (m *Memory) Nodes(ctx context.Context, dir ir.Direction, ids []ir.TokenID) (nodes map[ir.TokenID][]byte, err error) {
	err = m.read(func(s *memState) error { nodes, err = s.Nodes(ctx, dir, ids); return err })
	return nodes, err
}

// CountNodes implements Reader.
func (m *Memory) CountNodes(ctx context.Context, dir ir.Direction) (n int, err error) {
	err = m.read(func(s *memState) error { n, err = s.CountNodes(ctx, dir); return err })
	return n, err
}

// NodeIDs implements Reader.
func (m *Memory) NodeIDs(ctx context.Context, dir ir.Direction) (ids []ir.TokenID, err error) {
	err = m.read(func(s *memState) error { ids, err = s.NodeIDs(ctx, dir); return err })
	return ids, err
}

// memState is one snapshot of a Memory store. It implements Tx directly.
type memState struct {
	tokens map[ir.TokenID]TokenRow
	byText map[string]ir.TokenID
	banned map[string]struct{}
	nodes  [2]map[ir.TokenID][]byte
}

func newMemState() *memState {
	return &memState{
		tokens: make(map[ir.TokenID]TokenRow),
		byText: make(map[string]ir.TokenID),
		banned: make(map[string]struct{}),
		nodes:  [2]map[ir.TokenID][]byte{make(map[ir.TokenID][]byte), make(map[ir.TokenID][]byte)},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, row := range s.tokens {
		row.Forms = cloneBytes(row.Forms)
		c.tokens[id] = row
	}
	for text, id := range s.byText {
		c.byText[text] = id
	}
	for text := range s.banned {
		c.banned[text] = struct{}{}
	}
	for d := range s.nodes {
		for id, blob := range s.nodes[d] {
			c.nodes[d][id] = cloneBytes(blob)
		}
	}
	return c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func (s *memState) TokensByText(_ context.Context, texts []string) ([]TokenRow, error) {
	rows := []TokenRow{}
	seen := make(map[ir.TokenID]bool)
	for _, text := range texts {
		if id, ok := s.byText[text]; ok && !seen[id] {
			seen[id] = true
			rows = append(rows, s.copyRow(id))
		}
	}
	sortRows(rows)
	return rows, nil
}

func (s *memState) TokensByID(_ context.Context, ids []ir.TokenID) ([]TokenRow, error) {
	rows := []TokenRow{}
	seen := make(map[ir.TokenID]bool)
	for _, id := range ids {
		if _, ok := s.tokens[id]; ok && !seen[id] {
			seen[id] = true
			rows = append(rows, s.copyRow(id))
		}
	}
	sortRows(rows)
	return rows, nil
}

func (s *memState) copyRow(id ir.TokenID) TokenRow {
	row := s.tokens[id]
	row.Forms = cloneBytes(row.Forms)
	return row
}

func (s *memState) TokensContaining(_ context.Context, substrings []string) ([]ir.TokenRef, error) {
	refs := []ir.TokenRef{}
	seen := make(map[ir.TokenID]bool)
	for _, sub := range substrings {
		if sub == "" {
			continue
		}
		for _, id := range s.sortedIDs() {
			row := s.tokens[id]
			if !seen[id] && strings.Contains(row.Text, sub) {
				seen[id] = true
				refs = append(refs, ir.TokenRef{Text: row.Text, ID: id})
			}
		}
	}
	return refs, nil
}

func (s *memState) RandomTokens(_ context.Context, count int) ([]ir.TokenRef, error) {
	ids := s.sortedIDs()
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if count < len(ids) {
		ids = ids[:max(count, 0)]
	}
	refs := make([]ir.TokenRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, ir.TokenRef{Text: s.tokens[id].Text, ID: id})
	}
	return refs, nil
}

func (s *memState) sortedIDs() []ir.TokenID {
	ids := make([]ir.TokenID, 0, len(s.tokens))
	for id := range s.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *memState) MaxTokenID(context.Context) (ir.TokenID, bool, error) {
	if len(s.tokens) == 0 {
		return 0, false, nil
	}
	ids := s.sortedIDs()
	return ids[len(ids)-1], true, nil
}

func (s *memState) CountTokens(context.Context) (int, error) {
	return len(s.tokens), nil
}

func (s *memState) Banned(_ context.Context, texts ...string) ([]BannedRow, error) {
	var candidates []string
	if len(texts) == 0 {
		for text := range s.banned {
			candidates = append(candidates, text)
		}
	} else {
		for _, text := range texts {
			if _, ok := s.banned[text]; ok {
				candidates = append(candidates, text)
			}
		}
	}
	sort.Strings(candidates)
	candidates = dedupeSorted(candidates)

	rows := make([]BannedRow, 0, len(candidates))
	for _, text := range candidates {
		row := BannedRow{Text: text}
		if id, ok := s.byText[text]; ok {
			row.TokenID = id
			row.Linked = true
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func dedupeSorted(values []string) []string {
	out := values[:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func (s *memState) Nodes(_ context.Context, dir ir.Direction, ids []ir.TokenID) (map[ir.TokenID][]byte, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("invalid direction %s", dir)
	}
	result := make(map[ir.TokenID][]byte, len(ids))
	for _, id := range ids {
		if blob, ok := s.nodes[dir][id]; ok {
			result[id] = cloneBytes(blob)
		}
	}
	return result, nil
}

func (s *memState) NodeIDs(_ context.Context, dir ir.Direction) ([]ir.TokenID, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("invalid direction %s", dir)
	}
	ids := make([]ir.TokenID, 0, len(s.nodes[dir]))
	for id := range s.nodes[dir] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memState) CountNodes(_ context.Context, dir ir.Direction) (int, error) {
	if !dir.Valid() {
		return 0, fmt.Errorf("invalid direction %s", dir)
	}
	return len(s.nodes[dir]), nil
}

func (s *memState) PutTokens(_ context.Context, rows []TokenRow) error {
	for _, row := range rows {
		if other, ok := s.byText[row.Text]; ok && other != row.ID {
			return newError(CodeTransactionFailure, "write token",
				fmt.Errorf("UNIQUE constraint failed: dictionary.text %q", row.Text))
		}
		if prev, ok := s.tokens[row.ID]; ok && prev.Text != row.Text {
			delete(s.byText, prev.Text)
		}
		row.Forms = cloneBytes(row.Forms)
		s.tokens[row.ID] = row
		s.byText[row.Text] = row.ID
	}
	return nil
}

func (s *memState) ClearForms(_ context.Context, ids []ir.TokenID) error {
	for _, id := range ids {
		if row, ok := s.tokens[id]; ok {
			row.Forms = nil
			s.tokens[id] = row
		}
	}
	return nil
}

func (s *memState) PutBanned(_ context.Context, texts []string) error {
	for _, text := range texts {
		s.banned[text] = struct{}{}
	}
	return nil
}

func (s *memState) DeleteBanned(_ context.Context, texts []string) error {
	for _, text := range texts {
		delete(s.banned, text)
	}
	return nil
}

func (s *memState) PutNode(_ context.Context, dir ir.Direction, id ir.TokenID, blob []byte) error {
	if !dir.Valid() {
		return fmt.Errorf("invalid direction %s", dir)
	}
	if _, ok := s.tokens[id]; !ok {
		return newError(CodeTransactionFailure, "write "+dir.String()+" node",
			fmt.Errorf("FOREIGN KEY constraint failed: source %d", id))
	}
	s.nodes[dir][id] = cloneBytes(blob)
	return nil
}

func (s *memState) DeleteNode(_ context.Context, dir ir.Direction, id ir.TokenID) error {
	if !dir.Valid() {
		return fmt.Errorf("invalid direction %s", dir)
	}
	delete(s.nodes[dir], id)
	return nil
}
