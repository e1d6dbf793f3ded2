// Package banned implements the per-context banned-substring filter that
// gates learning and generation.
//
// A banned text blocks every token containing it. Per-context entries are
// persisted in the store; the generic list is shared by all contexts.
package banned

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/normalize"
	"github.com/roach88/tyuo/internal/store"
)

// Entry is one per-context ban. TokenID is meaningful only when Linked.
type Entry struct {
	Text    string     `json:"text"`
	TokenID ir.TokenID `json:"token_id,omitempty"`
	Linked  bool       `json:"linked"`
}

// Filter holds the in-memory view of a context's bans.
//
// Ban and Unban only stage changes inside the caller's transaction; the
// caller calls Apply once that transaction has committed, so a rolled back
// ban never leaks into memory.
type Filter struct {
	generic *GenericList
	logger  *zap.Logger

	mu         sync.RWMutex
	entries    map[string]Entry
	linked     map[ir.TokenID]string
	genericIDs map[ir.TokenID]struct{}
}

// NewFilter returns an empty filter backed by generic.
func NewFilter(generic *GenericList, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if generic == nil {
		generic = NewGenericList()
	}
	return &Filter{
		generic:    generic,
		logger:     logger.With(zap.String("component", "banned")),
		entries:    make(map[string]Entry),
		linked:     make(map[ir.TokenID]string),
		genericIDs: make(map[ir.TokenID]struct{}),
	}
}

// Load replaces the in-memory state with the persisted entries and resolves
// the dictionary ids implicated by generic substrings.
func (f *Filter) Load(ctx context.Context, r store.Reader) error {
	rows, err := r.Banned(ctx)
	if err != nil {
		return fmt.Errorf("load banned: %w", err)
	}
	refs, err := r.TokensContaining(ctx, f.generic.Entries())
	if err != nil {
		return fmt.Errorf("resolve generic bans: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]Entry, len(rows))
	f.linked = make(map[ir.TokenID]string)
	f.genericIDs = make(map[ir.TokenID]struct{}, len(refs))
	for _, row := range rows {
		f.addLocked(entryFromRow(row))
	}
	for _, ref := range refs {
		f.genericIDs[ref.ID] = struct{}{}
	}

	f.logger.Debug("banned list loaded",
		zap.Int("entries", len(f.entries)),
		zap.Int("generic_ids", len(f.genericIDs)))
	return nil
}

// Ban persists every canonicalized text not already banned and returns the
// new entries with their dictionary links.
func (f *Filter) Ban(ctx context.Context, tx store.Tx, texts []string) ([]Entry, error) {
	fresh := f.unknown(texts)
	if len(fresh) == 0 {
		return []Entry{}, nil
	}
	if err := tx.PutBanned(ctx, fresh); err != nil {
		return nil, fmt.Errorf("ban: %w", err)
	}
	rows, err := tx.Banned(ctx, fresh...)
	if err != nil {
		return nil, fmt.Errorf("ban: %w", err)
	}
	added := make([]Entry, 0, len(rows))
	for _, row := range rows {
		added = append(added, entryFromRow(row))
	}
	return added, nil
}

// Unban deletes the exactly matching entries and returns the texts removed.
func (f *Filter) Unban(ctx context.Context, tx store.Tx, texts []string) ([]string, error) {
	f.mu.RLock()
	var known []string
	for _, text := range canonicalSet(texts) {
		if _, ok := f.entries[text]; ok {
			known = append(known, text)
		}
	}
	f.mu.RUnlock()

	if len(known) == 0 {
		return []string{}, nil
	}
	if err := tx.DeleteBanned(ctx, known); err != nil {
		return nil, fmt.Errorf("unban: %w", err)
	}
	return known, nil
}

// Apply publishes committed Ban and Unban results.
func (f *Filter) Apply(added []Entry, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range added {
		f.addLocked(e)
	}
	for _, text := range removed {
		e, ok := f.entries[text]
		if !ok {
			continue
		}
		delete(f.entries, text)
		if e.Linked && f.linked[e.TokenID] == text {
			delete(f.linked, e.TokenID)
		}
	}
}

func (f *Filter) addLocked(e Entry) {
	f.entries[e.Text] = e
	if e.Linked {
		f.linked[e.TokenID] = e.Text
	}
}

// IsBannedByText reports whether any per-context or generic substring occurs
// in any of texts. Inputs are canonicalized before matching.
func (f *Filter) IsBannedByText(texts ...string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, text := range texts {
		c := normalize.Canonical(text)
		if c == "" {
			continue
		}
		if f.generic.Matches(c) {
			return true
		}
		for banned := range f.entries {
			if strings.Contains(c, banned) {
				return true
			}
		}
	}
	return false
}

// IsBannedByID reports whether any id is linked to a per-context entry or was
// implicated by a generic substring when the context was loaded.
func (f *Filter) IsBannedByID(ids ...ir.TokenID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, id := range ids {
		if _, ok := f.linked[id]; ok {
			return true
		}
		if _, ok := f.genericIDs[id]; ok {
			return true
		}
	}
	return false
}

// Entries returns the per-context entries sorted by text.
func (f *Filter) Entries() []Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// unknown canonicalizes texts and keeps those not yet banned.
func (f *Filter) unknown(texts []string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for _, text := range canonicalSet(texts) {
		if _, ok := f.entries[text]; !ok {
			out = append(out, text)
		}
	}
	return out
}

func canonicalSet(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	var out []string
	for _, text := range texts {
		c := normalize.Canonical(text)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func entryFromRow(row store.BannedRow) Entry {
	return Entry{Text: row.Text, TokenID: row.TokenID, Linked: row.Linked}
}
