package graph

import (
	"fmt"
	"math"

	"github.com/roach88/tyuo/internal/codec"
	"github.com/roach88/tyuo/internal/ir"
)

// triple is the persisted form of one transition:
// [target_id, occurrences, last_observed_epoch_seconds].
type triple [3]int64

func encodeNode(format codec.Format, n *Node) ([]byte, error) {
	triples := make([]triple, 0, len(n.Transitions))
	for _, target := range n.Targets() {
		t := n.Transitions[target]
		triples = append(triples, triple{int64(target), int64(t.Occurrences), t.LastObserved})
	}
	blob, err := codec.Encode(format, triples)
	if err != nil {
		return nil, fmt.Errorf("encode node %d: %w", n.Source, err)
	}
	return blob, nil
}

func decodeNode(source ir.TokenID, blob []byte) (*Node, error) {
	var triples []triple
	if _, err := codec.Decode(blob, &triples); err != nil {
		return nil, err
	}

	n := NewNode(source)
	for i, tr := range triples {
		target, occurrences, last := tr[0], tr[1], tr[2]
		if target < math.MinInt32 || target > math.MaxInt32 {
			return nil, fmt.Errorf("entry %d: target %d out of range", i, target)
		}
		if occurrences <= 0 || occurrences > math.MaxUint32 {
			return nil, fmt.Errorf("entry %d: occurrences %d out of range", i, occurrences)
		}
		if _, dup := n.Transitions[ir.TokenID(target)]; dup {
			return nil, fmt.Errorf("entry %d: duplicate target %d", i, target)
		}
		n.Transitions[ir.TokenID(target)] = Transition{Occurrences: uint32(occurrences), LastObserved: last}
	}
	return n, nil
}
