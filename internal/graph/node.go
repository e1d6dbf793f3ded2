package graph

import (
	"math"
	"sort"
	"time"

	"github.com/roach88/tyuo/internal/ir"
)

// Transition is the weight of one directed edge.
type Transition struct {
	Occurrences  uint32
	LastObserved int64 // unix seconds
}

// Node holds every outgoing transition of one source token in one direction.
type Node struct {
	Source      ir.TokenID
	Transitions map[ir.TokenID]Transition
}

// NewNode returns a node without transitions.
func NewNode(source ir.TokenID) *Node {
	return &Node{Source: source, Transitions: make(map[ir.TokenID]Transition)}
}

// Record counts one observation of source -> target at now.
func (n *Node) Record(target ir.TokenID, now time.Time) {
	t := n.Transitions[target]
	if t.Occurrences < math.MaxUint32 {
		t.Occurrences++
	}
	t.LastObserved = now.Unix()
	n.Transitions[target] = t
}

// Remove deletes transitions to targets and returns how many existed.
func (n *Node) Remove(targets ...ir.TokenID) int {
	removed := 0
	for _, target := range targets {
		if _, ok := n.Transitions[target]; ok {
			delete(n.Transitions, target)
			removed++
		}
	}
	return removed
}

// Len returns the number of transitions.
func (n *Node) Len() int {
	return len(n.Transitions)
}

// Empty reports whether the node has no transitions left.
func (n *Node) Empty() bool {
	return len(n.Transitions) == 0
}

// Targets returns the target ids in ascending order.
func (n *Node) Targets() []ir.TokenID {
	targets := make([]ir.TokenID, 0, len(n.Transitions))
	for id := range n.Transitions {
		targets = append(targets, id)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}

// Decimate divides every occurrence count by factor when the node has more
// than threshold transitions, dropping those that reach zero. It reports
// whether the node was scaled.
func (n *Node) Decimate(threshold int, factor uint32) bool {
	if factor < 2 || len(n.Transitions) <= threshold {
		return false
	}
	for target, t := range n.Transitions {
		t.Occurrences /= factor
		if t.Occurrences == 0 {
			delete(n.Transitions, target)
			continue
		}
		n.Transitions[target] = t
	}
	return true
}

// prune drops transitions last observed before cutoff or pointing at a target
// rejected by banned. It returns the number dropped.
func (n *Node) prune(cutoff int64, banned func(ir.TokenID) bool) int {
	dropped := 0
	for target, t := range n.Transitions {
		if t.LastObserved < cutoff || banned(target) {
			delete(n.Transitions, target)
			dropped++
		}
	}
	return dropped
}
