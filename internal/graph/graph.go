// Package graph implements the forward and reverse transition graphs: weighted
// adjacency between token ids with recency-based aging and decimation.
//
// A Graph value serves one direction. Nodes are read through a store.Reader
// and written through a store.Tx supplied by the caller, so one logical change
// spanning both directions can commit atomically.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/tyuo/internal/codec"
	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/store"
)

// BanChecker reports whether a token id is currently banned.
type BanChecker interface {
	IsBannedByID(ids ...ir.TokenID) bool
}

// Policy bounds how long transitions live and how large nodes grow.
type Policy struct {
	// MaxAge discards transitions last observed longer ago than this on read.
	MaxAge time.Duration
	// DecimationThreshold is the transition count above which a node is scaled.
	DecimationThreshold int
	// DecimationFactor divides every occurrence count when scaling.
	DecimationFactor uint32
}

// DefaultPolicy keeps transitions for a year and scales nodes past 100
// transitions by a third.
var DefaultPolicy = Policy{
	MaxAge:              365 * 24 * time.Hour,
	DecimationThreshold: 100,
	DecimationFactor:    3,
}

// Config wires a Graph to its collaborators.
type Config struct {
	Direction ir.Direction
	Policy    Policy
	Format    codec.Format
	Clock     ir.Clock
	Bans      BanChecker
	Logger    *zap.Logger
}

// Graph is one direction of the transition graph.
type Graph struct {
	dir    ir.Direction
	policy Policy
	format codec.Format
	clock  ir.Clock
	bans   BanChecker
	logger *zap.Logger
}

type noBans struct{}

func (noBans) IsBannedByID(...ir.TokenID) bool { return false }

// New returns a Graph for cfg.Direction.
func New(cfg Config) *Graph {
	g := &Graph{
		dir:    cfg.Direction,
		policy: cfg.Policy,
		format: cfg.Format,
		clock:  cfg.Clock,
		bans:   cfg.Bans,
		logger: cfg.Logger,
	}
	if g.clock == nil {
		g.clock = ir.SystemClock{}
	}
	if g.bans == nil {
		g.bans = noBans{}
	}
	if g.format == 0 {
		g.format = codec.FormatJSONZlib
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	g.logger = g.logger.With(zap.String("component", "graph"), zap.Stringer("direction", g.dir))
	return g
}

// Direction returns the graph's direction.
func (g *Graph) Direction() ir.Direction {
	return g.dir
}

// GetNodes loads the nodes of ids. Transitions older than the policy's max age
// or pointing at banned ids are dropped; nodes left with no transitions and
// nodes whose blob cannot be decoded are omitted from the result.
func (g *Graph) GetNodes(ctx context.Context, r store.Reader, ids []ir.TokenID) (map[ir.TokenID]*Node, error) {
	blobs, err := r.Nodes(ctx, g.dir, ids)
	if err != nil {
		return nil, fmt.Errorf("get %s nodes: %w", g.dir, err)
	}

	cutoff := g.cutoff()
	banned := func(id ir.TokenID) bool { return g.bans.IsBannedByID(id) }

	nodes := make(map[ir.TokenID]*Node, len(blobs))
	for id, blob := range blobs {
		n, err := decodeNode(id, blob)
		if err != nil {
			g.logger.Warn("ignoring unreadable node",
				zap.Int32("source_id", int32(id)),
				zap.Error(store.NewCorruptedError("decode node", err)))
			continue
		}
		if dropped := n.prune(cutoff, banned); dropped > 0 {
			g.logger.Debug("pruned transitions on load",
				zap.Int32("source_id", int32(id)), zap.Int("dropped", dropped))
		}
		if !n.Empty() {
			nodes[id] = n
		}
	}
	return nodes, nil
}

func (g *Graph) cutoff() int64 {
	if g.policy.MaxAge <= 0 {
		return 0
	}
	return g.clock.Now().Add(-g.policy.MaxAge).Unix()
}

// Record counts one observation of source -> target in nodes, creating the
// source node when nodes lacks it.
func (g *Graph) Record(nodes map[ir.TokenID]*Node, source, target ir.TokenID) {
	n, ok := nodes[source]
	if !ok {
		n = NewNode(source)
		nodes[source] = n
	}
	n.Record(target, g.clock.Now())
}

// Decimate applies the policy's decimation to n.
func (g *Graph) Decimate(n *Node) bool {
	scaled := n.Decimate(g.policy.DecimationThreshold, g.policy.DecimationFactor)
	if scaled {
		g.logger.Debug("decimated node",
			zap.Int32("source_id", int32(n.Source)), zap.Int("remaining", n.Len()))
	}
	return scaled
}

// SaveNodes writes nodes in tx. Empty nodes are deleted instead of stored.
func (g *Graph) SaveNodes(ctx context.Context, tx store.Tx, nodes map[ir.TokenID]*Node) error {
	ids := make([]ir.TokenID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		n := nodes[id]
		if n.Empty() {
			if err := tx.DeleteNode(ctx, g.dir, id); err != nil {
				return fmt.Errorf("save %s nodes: %w", g.dir, err)
			}
			continue
		}
		blob, err := encodeNode(g.format, n)
		if err != nil {
			return err
		}
		if err := tx.PutNode(ctx, g.dir, id, blob); err != nil {
			return fmt.Errorf("save %s nodes: %w", g.dir, err)
		}
	}
	return nil
}

// DeleteNodes removes the nodes of ids in tx.
func (g *Graph) DeleteNodes(ctx context.Context, tx store.Tx, ids []ir.TokenID) error {
	for _, id := range ids {
		if err := tx.DeleteNode(ctx, g.dir, id); err != nil {
			return fmt.Errorf("delete %s nodes: %w", g.dir, err)
		}
	}
	return nil
}

// purgeBatch bounds how many nodes Purge decodes at once.
const purgeBatch = 500

// Purge removes ids from this direction entirely: their own nodes are
// deleted, and every other node in the graph is scanned and rewritten without
// transitions to them. The opposite direction is never consulted: decimation
// prunes each direction on its own, so it is not a reliable index of who
// points at an id. Rows that no longer decode or hold no live transitions are
// deleted as well. It returns the number of other nodes rewritten or deleted.
func (g *Graph) Purge(ctx context.Context, tx store.Tx, ids []ir.TokenID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := g.DeleteNodes(ctx, tx, ids); err != nil {
		return 0, err
	}

	sources, err := tx.NodeIDs(ctx, g.dir)
	if err != nil {
		return 0, fmt.Errorf("purge %s nodes: %w", g.dir, err)
	}

	touched := 0
	for start := 0; start < len(sources); start += purgeBatch {
		batch := sources[start:min(start+purgeBatch, len(sources))]
		nodes, err := g.GetNodes(ctx, tx, batch)
		if err != nil {
			return 0, err
		}

		changed := make(map[ir.TokenID]*Node)
		for _, id := range batch {
			n, ok := nodes[id]
			if !ok {
				changed[id] = NewNode(id)
				continue
			}
			if n.Remove(ids...) > 0 {
				changed[id] = n
			}
		}
		if err := g.SaveNodes(ctx, tx, changed); err != nil {
			return 0, err
		}
		touched += len(changed)
	}
	return touched, nil
}
