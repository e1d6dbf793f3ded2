package model

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/tyuo/internal/graph"
	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/normalize"
)

// sampleRounds bounds how often random padding is retried when samples keep
// landing on excluded tokens.
const sampleRounds = 4

// Generate produces one line of text seeded by seed. It returns ErrNoOutput
// when no keyword candidate survives filtering.
//
// One production is built per keyword: a backward walk (reversed), the
// keyword, then a forward walk. The production covering the most distinct
// keywords wins, then the longest, then the earliest keyword.
func (m *Model) Generate(ctx context.Context, seed []string) (string, error) {
	keywords, err := m.keywords(ctx, seed)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(keywords) == 0 {
		return "", ErrNoOutput
	}

	rng := m.derivedRand()
	fw := m.forward.NewWalker(m.store, rng, m.cfg.MaxWalkSteps)
	rw := m.reverse.NewWalker(m.store, rng, m.cfg.MaxWalkSteps)

	isKeyword := make(map[ir.TokenID]bool, len(keywords))
	for _, id := range keywords {
		isKeyword[id] = true
	}

	var (
		best      []ir.TokenID
		bestScore int
	)
	for _, kw := range keywords[:min(len(keywords), m.cfg.KeywordPool)] {
		prod, err := m.production(ctx, fw, rw, kw)
		if err != nil {
			return "", fmt.Errorf("generate: %w", err)
		}
		score := coverage(prod, isKeyword)
		if best == nil || score > bestScore || (score == bestScore && len(prod) > len(best)) {
			best, bestScore = prod, score
		}
	}

	text, err := m.render(ctx, best)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	m.logger.Debug("generated",
		zap.Int("keywords", len(keywords)),
		zap.Int("length", len(best)),
		zap.Int("coverage", bestScore))
	return text, nil
}

func (m *Model) production(ctx context.Context, fw, rw *graph.Walker, kw ir.TokenID) ([]ir.TokenID, error) {
	back, backCapped, err := rw.Walk(ctx, kw)
	if err != nil {
		return nil, err
	}
	ahead, aheadCapped, err := fw.Walk(ctx, kw)
	if err != nil {
		return nil, err
	}
	if backCapped || aheadCapped {
		m.logger.Debug("walk reached step cap", zap.Int32("keyword", int32(kw)))
	}

	prod := make([]ir.TokenID, 0, len(back)+1+len(ahead))
	for i := len(back) - 1; i >= 0; i-- {
		prod = append(prod, back[i])
	}
	prod = append(prod, kw)
	return append(prod, ahead...), nil
}

func coverage(prod []ir.TokenID, isKeyword map[ir.TokenID]bool) int {
	seen := make(map[ir.TokenID]bool)
	for _, id := range prod {
		if isKeyword[id] {
			seen[id] = true
		}
	}
	return len(seen)
}

func (m *Model) render(ctx context.Context, ids []ir.TokenID) (string, error) {
	toks, err := m.dict.LookupByID(ctx, m.store, uniqueIDs(ids))
	if err != nil {
		return "", err
	}
	words := make([]string, len(ids))
	for i, id := range ids {
		words[i] = toks[id].Surface(i == 0)
	}
	return strings.Join(words, " "), nil
}

// keywords returns the primary candidates from seed followed by random
// padding up to MinKeywords.
func (m *Model) keywords(ctx context.Context, seed []string) ([]ir.TokenID, error) {
	var primary []string
	for _, tok := range seed {
		c := normalize.Canonical(tok)
		if c == "" || m.stop[c] || m.filter.IsBannedByText(c) || slices.Contains(primary, c) {
			continue
		}
		primary = append(primary, c)
	}

	chosen := []ir.TokenID{}
	taken := make(map[ir.TokenID]bool)
	if len(primary) > 0 {
		toks, err := m.dict.LookupByText(ctx, m.store, primary)
		if err != nil {
			return nil, err
		}
		byText := make(map[string]ir.TokenID, len(toks))
		for _, tok := range toks {
			byText[tok.Text] = tok.ID
		}
		for _, text := range primary {
			id, ok := byText[text]
			if ok && !m.filter.IsBannedByID(id) {
				chosen = append(chosen, id)
				taken[id] = true
			}
		}
	}

	for round := 0; round < sampleRounds && len(chosen) < m.cfg.MinKeywords; round++ {
		refs, err := m.dict.SampleRandom(ctx, m.store, 2*(m.cfg.MinKeywords-len(chosen)))
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			break
		}
		for _, ref := range refs {
			if len(chosen) >= m.cfg.MinKeywords {
				break
			}
			if taken[ref.ID] || m.stop[ref.Text] || m.filter.IsBannedByID(ref.ID) || m.filter.IsBannedByText(ref.Text) {
				continue
			}
			chosen = append(chosen, ref.ID)
			taken[ref.ID] = true
		}
	}
	return chosen, nil
}

// derivedRand splits off a generator for one call so concurrent generations
// never share rand state.
func (m *Model) derivedRand() *rand.Rand {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	return rand.New(rand.NewPCG(m.rng.Uint64(), m.rng.Uint64()))
}
