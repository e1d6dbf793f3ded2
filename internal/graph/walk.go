package graph

import (
	"context"
	"math/rand/v2"

	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/store"
)

// Walker performs bounded weighted random walks over one Graph, caching the
// nodes it loads so repeated walks within one generation read each node once.
//
// A Walker is not safe for concurrent use.
type Walker struct {
	g        *Graph
	r        store.Reader
	rng      *rand.Rand
	maxSteps int
	cache    map[ir.TokenID]*Node // nil value: known to have no transitions
}

// NewWalker returns a Walker over g reading through r. Walks stop after
// maxSteps steps.
func (g *Graph) NewWalker(r store.Reader, rng *rand.Rand, maxSteps int) *Walker {
	return &Walker{g: g, r: r, rng: rng, maxSteps: maxSteps, cache: make(map[ir.TokenID]*Node)}
}

// Walk starts at start and repeatedly follows a transition chosen with
// probability proportional to its occurrences. It returns the visited ids
// after start, in walk order, and whether the step cap ended the walk.
func (w *Walker) Walk(ctx context.Context, start ir.TokenID) (path []ir.TokenID, capped bool, err error) {
	path = []ir.TokenID{}
	current := start
	for steps := 0; ; steps++ {
		if steps >= w.maxSteps {
			return path, true, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		n, err := w.node(ctx, current)
		if err != nil {
			return nil, false, err
		}
		if n == nil {
			return path, false, nil
		}
		current = w.choose(n)
		path = append(path, current)
	}
}

func (w *Walker) node(ctx context.Context, id ir.TokenID) (*Node, error) {
	if n, ok := w.cache[id]; ok {
		return n, nil
	}
	nodes, err := w.g.GetNodes(ctx, w.r, []ir.TokenID{id})
	if err != nil {
		return nil, err
	}
	n := nodes[id]
	w.cache[id] = n
	return n, nil
}

// choose assumes n is not empty.
func (w *Walker) choose(n *Node) ir.TokenID {
	targets := n.Targets()
	var total uint64
	for _, id := range targets {
		total += uint64(n.Transitions[id].Occurrences)
	}
	pick := w.rng.Uint64N(total)
	for _, id := range targets {
		weight := uint64(n.Transitions[id].Occurrences)
		if pick < weight {
			return id
		}
		pick -= weight
	}
	return targets[len(targets)-1]
}
