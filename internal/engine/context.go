package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/tyuo/internal/banned"
	"github.com/roach88/tyuo/internal/metrics"
	"github.com/roach88/tyuo/internal/model"
)

// Operation names used in errors and metrics.
const (
	OpLearn    = "learn"
	OpGenerate = "generate"
	OpBan      = "ban"
	OpUnban    = "unban"
)

// Context is a handle to one open context.
type Context struct {
	id      string
	metrics *metrics.Collector

	mu    sync.RWMutex
	model *model.Model
	gone  error // non-nil once dropped or closed
}

func newContext(id string, m *model.Model, mc *metrics.Collector) *Context {
	return &Context{id: id, model: m, metrics: mc}
}

// ID returns the context id.
func (c *Context) ID() string {
	return c.id
}

// Learn records the adjacency of tokens and returns how many were learned.
func (c *Context) Learn(ctx context.Context, tokens []string, learnable bool) (int, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone != nil {
		return 0, wrap(c.id, OpLearn, c.gone)
	}

	n, err := c.model.Learn(ctx, tokens, learnable)
	c.record(OpLearn, err, start)
	if err != nil {
		return 0, wrap(c.id, OpLearn, err)
	}
	c.metrics.AddTokensLearned(n)
	return n, nil
}

// Generate produces one line seeded by seed, or model.ErrNoOutput.
func (c *Context) Generate(ctx context.Context, seed []string) (string, error) {
	start := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.gone != nil {
		return "", wrap(c.id, OpGenerate, c.gone)
	}

	text, err := c.model.Generate(ctx, seed)
	c.record(OpGenerate, err, start)
	if err != nil {
		return "", wrap(c.id, OpGenerate, err)
	}
	return text, nil
}

// Ban bans texts and scrubs every linked token from the graph.
func (c *Context) Ban(ctx context.Context, texts []string) ([]banned.Entry, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone != nil {
		return nil, wrap(c.id, OpBan, c.gone)
	}

	added, err := c.model.Ban(ctx, texts)
	c.record(OpBan, err, start)
	if err != nil {
		return nil, wrap(c.id, OpBan, err)
	}
	c.metrics.AddBans(len(added))
	return added, nil
}

// Unban removes exactly matching entries and returns the texts removed.
func (c *Context) Unban(ctx context.Context, texts []string) ([]string, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone != nil {
		return nil, wrap(c.id, OpUnban, c.gone)
	}

	removed, err := c.model.Unban(ctx, texts)
	c.record(OpUnban, err, start)
	if err != nil {
		return nil, wrap(c.id, OpUnban, err)
	}
	return removed, nil
}

// Banned returns the context's own banned entries.
func (c *Context) Banned(_ context.Context) ([]banned.Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.gone != nil {
		return nil, wrap(c.id, "banned", c.gone)
	}
	return c.model.Banned(), nil
}

// Stats counts the context's tokens, nodes and bans.
func (c *Context) Stats(ctx context.Context) (model.Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.gone != nil {
		return model.Stats{}, wrap(c.id, "stats", c.gone)
	}
	st, err := c.model.Stats(ctx)
	if err != nil {
		return model.Stats{}, wrap(c.id, "stats", err)
	}
	return st, nil
}

// invalidate waits for in-flight operations, then closes the model. Every
// later call returns reason.
func (c *Context) invalidate(reason error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone != nil {
		return nil
	}
	c.gone = reason
	return c.model.Close()
}

func (c *Context) record(op string, err error, start time.Time) {
	result := metrics.ResultOK
	switch {
	case errors.Is(err, model.ErrNoOutput):
		result = metrics.ResultNoOutput
	case err != nil:
		result = metrics.ResultError
	}
	c.metrics.RecordOperation(op, result, time.Since(start))
}
