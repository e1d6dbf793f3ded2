// Package model orchestrates one context: it owns the context's store and
// keeps the dictionary, banned filter and both transition graphs consistent
// with each other.
//
// Model performs no locking of its own beyond its random source. Callers
// serialize mutating operations per context (see internal/engine).
package model

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/tyuo/internal/banned"
	"github.com/roach88/tyuo/internal/codec"
	"github.com/roach88/tyuo/internal/dictionary"
	"github.com/roach88/tyuo/internal/graph"
	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/normalize"
	"github.com/roach88/tyuo/internal/store"
)

// ErrNoOutput is returned by Generate when no keyword candidate survives
// filtering.
var ErrNoOutput = errors.New("no output")

// Config holds the tunables of one Model.
type Config struct {
	Format codec.Format
	Policy graph.Policy

	// MinKeywords is the candidate count below which random tokens are added.
	MinKeywords int
	// MaxWalkSteps caps each directional walk.
	MaxWalkSteps int
	// KeywordPool is the number of keywords a production is built from.
	KeywordPool int
	// StopWords are canonical tokens never used as keywords.
	StopWords []string

	Clock  ir.Clock
	Rand   *rand.Rand
	Logger *zap.Logger
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Format:       codec.FormatJSONZlib,
		Policy:       graph.DefaultPolicy,
		MinKeywords:  3,
		MaxWalkSteps: 32,
		KeywordPool:  8,
	}
}

// Stats summarizes a context's size.
type Stats struct {
	Tokens       int `json:"tokens"`
	ForwardNodes int `json:"forward_nodes"`
	ReverseNodes int `json:"reverse_nodes"`
	Banned       int `json:"banned"`
}

// Model binds the components of one context to its store.
type Model struct {
	store   store.Store
	dict    *dictionary.Dictionary
	filter  *banned.Filter
	forward *graph.Graph
	reverse *graph.Graph

	cfg    Config
	stop   map[string]bool
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Open builds a Model over s and loads its banned list. The Model takes
// ownership of s.
func Open(ctx context.Context, s store.Store, generic *banned.GenericList, cfg Config) (*Model, error) {
	defaults := DefaultConfig()
	if cfg.Format == 0 {
		cfg.Format = defaults.Format
	}
	if cfg.Policy.MaxAge <= 0 {
		cfg.Policy.MaxAge = defaults.Policy.MaxAge
	}
	if cfg.Policy.DecimationThreshold <= 0 {
		cfg.Policy.DecimationThreshold = defaults.Policy.DecimationThreshold
	}
	if cfg.Policy.DecimationFactor < 2 {
		cfg.Policy.DecimationFactor = defaults.Policy.DecimationFactor
	}
	if cfg.MinKeywords <= 0 {
		cfg.MinKeywords = defaults.MinKeywords
	}
	if cfg.MaxWalkSteps <= 0 {
		cfg.MaxWalkSteps = defaults.MaxWalkSteps
	}
	if cfg.KeywordPool <= 0 {
		cfg.KeywordPool = defaults.KeywordPool
	}
	if cfg.Clock == nil {
		cfg.Clock = ir.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	filter := banned.NewFilter(generic, cfg.Logger)
	if err := filter.Load(ctx, s); err != nil {
		return nil, err
	}

	m := &Model{
		store:  s,
		dict:   dictionary.New(cfg.Format, cfg.Logger),
		filter: filter,
		cfg:    cfg,
		stop:   make(map[string]bool, len(cfg.StopWords)),
		logger: cfg.Logger.With(zap.String("component", "model")),
		rng:    cfg.Rand,
	}
	for _, dir := range ir.Directions {
		g := graph.New(graph.Config{
			Direction: dir,
			Policy:    cfg.Policy,
			Format:    cfg.Format,
			Clock:     cfg.Clock,
			Bans:      filter,
			Logger:    cfg.Logger,
		})
		if dir == ir.Forward {
			m.forward = g
		} else {
			m.reverse = g
		}
	}
	for _, w := range cfg.StopWords {
		if c := normalize.Canonical(w); c != "" {
			m.stop[c] = true
		}
	}
	return m, nil
}

// Close closes the underlying store.
func (m *Model) Close() error {
	return m.store.Close()
}

// Learn records the adjacency of tokens. Banned tokens are dropped before
// learning, so their neighbours become adjacent. The dictionary update and
// both graph updates commit in one transaction. It returns the number of
// tokens learned.
func (m *Model) Learn(ctx context.Context, tokens []string, learnable bool) (int, error) {
	if !learnable {
		return 0, nil
	}

	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if normalize.Canonical(tok) == "" || m.filter.IsBannedByText(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return 0, nil
	}

	err := m.store.Update(ctx, func(tx store.Tx) error {
		ids, err := m.dict.Learn(ctx, tx, kept)
		if err != nil {
			return err
		}
		if len(ids) < 2 {
			return nil
		}
		return m.recordPairs(ctx, tx, ids)
	})
	if err != nil {
		return 0, fmt.Errorf("learn: %w", err)
	}
	return len(kept), nil
}

func (m *Model) recordPairs(ctx context.Context, tx store.Tx, ids []ir.TokenID) error {
	fwd, err := m.forward.GetNodes(ctx, tx, uniqueIDs(ids[:len(ids)-1]))
	if err != nil {
		return err
	}
	rev, err := m.reverse.GetNodes(ctx, tx, uniqueIDs(ids[1:]))
	if err != nil {
		return err
	}

	fwdTouched := make(map[ir.TokenID]*graph.Node)
	revTouched := make(map[ir.TokenID]*graph.Node)
	for i := 0; i+1 < len(ids); i++ {
		a, b := ids[i], ids[i+1]
		m.forward.Record(fwd, a, b)
		m.reverse.Record(rev, b, a)
		fwdTouched[a] = fwd[a]
		revTouched[b] = rev[b]
	}

	for _, n := range fwdTouched {
		m.forward.Decimate(n)
	}
	for _, n := range revTouched {
		m.reverse.Decimate(n)
	}

	if err := m.forward.SaveNodes(ctx, tx, fwdTouched); err != nil {
		return err
	}
	return m.reverse.SaveNodes(ctx, tx, revTouched)
}

// Ban bans texts and, for every new entry linked to a dictionary token,
// deletes all of that token's transitions in both directions and clears its
// capitalization map. Everything commits atomically.
func (m *Model) Ban(ctx context.Context, texts []string) ([]banned.Entry, error) {
	var added []banned.Entry
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var err error
		added, err = m.filter.Ban(ctx, tx, texts)
		if err != nil {
			return err
		}
		var linked []ir.TokenID
		for _, e := range added {
			if e.Linked {
				linked = append(linked, e.TokenID)
			}
		}
		if len(linked) == 0 {
			return nil
		}
		return m.scrub(ctx, tx, linked)
	})
	if err != nil {
		return nil, fmt.Errorf("ban: %w", err)
	}

	m.filter.Apply(added, nil)
	if len(added) > 0 {
		m.logger.Info("banned", zap.Int("entries", len(added)))
	}
	return added, nil
}

// scrub removes ids from both graphs and clears their capitalization maps.
func (m *Model) scrub(ctx context.Context, tx store.Tx, ids []ir.TokenID) error {
	for _, g := range []*graph.Graph{m.forward, m.reverse} {
		touched, err := g.Purge(ctx, tx, ids)
		if err != nil {
			return err
		}
		m.logger.Debug("scrubbed neighbours",
			zap.Stringer("direction", g.Direction()), zap.Int("nodes", touched))
	}
	return m.dict.Scrub(ctx, tx, ids)
}

// Unban removes exactly matching entries. Transitions deleted by the ban are
// not restored.
func (m *Model) Unban(ctx context.Context, texts []string) ([]string, error) {
	var removed []string
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var err error
		removed, err = m.filter.Unban(ctx, tx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unban: %w", err)
	}
	m.filter.Apply(nil, removed)
	return removed, nil
}

// Banned returns the context's banned entries.
func (m *Model) Banned() []banned.Entry {
	return m.filter.Entries()
}

// Stats counts tokens, nodes and bans.
func (m *Model) Stats(ctx context.Context) (Stats, error) {
	var (
		st  Stats
		err error
	)
	if st.Tokens, err = m.store.CountTokens(ctx); err != nil {
		return st, err
	}
	if st.ForwardNodes, err = m.store.CountNodes(ctx, ir.Forward); err != nil {
		return st, err
	}
	if st.ReverseNodes, err = m.store.CountNodes(ctx, ir.Reverse); err != nil {
		return st, err
	}
	st.Banned = len(m.filter.Entries())
	return st, nil
}

func uniqueIDs(ids []ir.TokenID) []ir.TokenID {
	seen := make(map[ir.TokenID]bool, len(ids))
	out := make([]ir.TokenID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
