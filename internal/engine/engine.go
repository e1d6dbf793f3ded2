package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/tyuo/internal/banned"
	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/metrics"
	"github.com/roach88/tyuo/internal/model"
	"github.com/roach88/tyuo/internal/store"
)

// Engine looks up, caches and drops contexts.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	manager store.Manager
	generic *banned.GenericList
	cfg     model.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	contexts map[string]*Context
	drops    map[string]uint64 // bumped by DropContext; stale opens are discarded
	seeds    *rand.Rand        // derives one generator per opened context
	closed   bool

	opening singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithModelConfig sets the configuration every context model is opened
// with. Its Logger and Clock are overridden by WithLogger and WithClock when
// those are also given.
func WithModelConfig(cfg model.Config) Option {
	return func(e *Engine) {
		logger, clock := e.cfg.Logger, e.cfg.Clock
		e.cfg = cfg
		if logger != nil {
			e.cfg.Logger = logger
		}
		if clock != nil {
			e.cfg.Clock = clock
		}
	}
}

// WithLogger sets the engine logger; contexts log through it too.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.cfg.Logger = logger
	}
}

// WithMetrics records per-operation metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithClock sets the wall clock stamped on learned transitions.
func WithClock(clock ir.Clock) Option {
	return func(e *Engine) {
		e.cfg.Clock = clock
	}
}

// New creates an Engine over manager. generic is shared read-only by every
// context; nil means no generic bans.
func New(manager store.Manager, generic *banned.GenericList, opts ...Option) *Engine {
	if generic == nil {
		generic = banned.NewGenericList()
	}
	e := &Engine{
		manager:  manager,
		generic:  generic,
		cfg:      model.DefaultConfig(),
		contexts: make(map[string]*Context),
		drops:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.cfg.Logger == nil {
		e.cfg.Logger = e.logger
	}
	e.logger = e.logger.With(zap.String("component", "engine"))

	if e.cfg.Rand != nil {
		e.seeds = e.cfg.Rand
	} else {
		e.seeds = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e
}

// GetContext returns the context for id, opening or creating its store on
// first use. Concurrent first lookups of one id share a single open; opening
// never holds the engine lock, so other contexts stay available meanwhile.
func (e *Engine) GetContext(ctx context.Context, id string) (*Context, error) {
	if err := ValidateContextID(id); err != nil {
		return nil, err
	}

	e.mu.Lock()
	closed := e.closed
	c, ok := e.contexts[id]
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}
	if ok {
		return c, nil
	}

	v, err, _ := e.opening.Do(id, func() (any, error) {
		return e.open(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Context), nil
}

// open loads id and publishes it, retrying when the id was dropped while its
// store was being opened.
func (e *Engine) open(ctx context.Context, id string) (*Context, error) {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, ErrEngineClosed
		}
		if c, ok := e.contexts[id]; ok {
			e.mu.Unlock()
			return c, nil
		}
		gen := e.drops[id]
		seed := rand.NewPCG(e.seeds.Uint64(), e.seeds.Uint64())
		e.mu.Unlock()

		m, err := e.openModel(ctx, id, seed)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		switch {
		case e.closed:
			e.mu.Unlock()
			e.discard(id, m)
			return nil, ErrEngineClosed
		case e.drops[id] != gen:
			e.mu.Unlock()
			e.discard(id, m)
			e.logger.Debug("context dropped while opening, reopening", zap.String("context", id))
			continue
		}
		c := newContext(id, m, e.metrics)
		e.contexts[id] = c
		e.metrics.SetContextsOpen(len(e.contexts))
		e.mu.Unlock()

		e.logger.Debug("context opened", zap.String("context", id))
		return c, nil
	}
}

func (e *Engine) openModel(ctx context.Context, id string, seed rand.Source) (*model.Model, error) {
	s, err := e.manager.Open(ctx, id)
	if err != nil {
		return nil, wrap(id, "open", err)
	}

	cfg := e.cfg
	cfg.Logger = e.cfg.Logger.With(zap.String("context", id))
	cfg.Rand = rand.New(seed)
	m, err := model.Open(ctx, s, e.generic, cfg)
	if err != nil {
		if cerr := s.Close(); cerr != nil {
			e.logger.Warn("close store after failed open", zap.String("context", id), zap.Error(cerr))
		}
		return nil, wrap(id, "open", err)
	}
	return m, nil
}

func (e *Engine) discard(id string, m *model.Model) {
	if err := m.Close(); err != nil {
		e.logger.Warn("close discarded context", zap.String("context", id), zap.Error(err))
	}
}

// ContextExists reports whether id has a backing store. It never creates one.
func (e *Engine) ContextExists(id string) (bool, error) {
	if err := ValidateContextID(id); err != nil {
		return false, err
	}

	e.mu.Lock()
	_, cached := e.contexts[id]
	e.mu.Unlock()
	if cached {
		return true, nil
	}
	return e.manager.Exists(id)
}

// DropContext waits for in-flight operations on id, invalidates every handle
// to it and deletes its store. Dropping an unknown id is a no-op.
func (e *Engine) DropContext(ctx context.Context, id string) error {
	if err := ValidateContextID(id); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	e.drops[id]++
	if c, ok := e.contexts[id]; ok {
		delete(e.contexts, id)
		e.metrics.SetContextsOpen(len(e.contexts))
		if err := c.invalidate(ErrContextDropped); err != nil {
			e.logger.Warn("close dropped context", zap.String("context", id), zap.Error(err))
		}
	}

	if err := e.manager.Delete(id); err != nil {
		return wrap(id, "drop", err)
	}
	e.logger.Info("context dropped", zap.String("context", id))
	return nil
}

// Contexts returns the ids of all stored contexts in sorted order.
func (e *Engine) Contexts() ([]string, error) {
	ids, err := e.manager.List()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes every open context. Handles obtained earlier fail with
// ErrEngineClosed afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for id, c := range e.contexts {
		if err := c.invalidate(ErrEngineClosed); err != nil {
			errs = append(errs, wrap(id, "close", err))
		}
	}
	e.contexts = map[string]*Context{}
	e.metrics.SetContextsOpen(0)
	return errors.Join(errs...)
}
