package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tyuo/internal/banned"
	"github.com/roach88/tyuo/internal/metrics"
	"github.com/roach88/tyuo/internal/model"
	"github.com/roach88/tyuo/internal/store"
	tyuotest "github.com/roach88/tyuo/internal/testutil"
)

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.MinKeywords = 1
	cfg.Rand = rand.New(rand.NewPCG(1, 2))
	return cfg
}

func setupEngine(t *testing.T, manager store.Manager, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{
		WithModelConfig(testConfig()),
		WithLogger(zaptest.NewLogger(t)),
		WithClock(tyuotest.NewFakeClock(time.Unix(1_700_000_000, 0))),
	}, opts...)
	e := New(manager, nil, opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestScenarioD_DropThenRecreate(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, store.NewFileManager(t.TempDir()))

	x, err := e.GetContext(ctx, "x")
	require.NoError(t, err)
	st, err := x.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{}, st, "fresh context is empty")

	_, err = x.Learn(ctx, []string{"hello", "world"}, true)
	require.NoError(t, err)

	require.NoError(t, e.DropContext(ctx, "x"))
	exists, err := e.ContextExists("x")
	require.NoError(t, err)
	assert.False(t, exists)

	again, err := e.GetContext(ctx, "x")
	require.NoError(t, err)
	assert.NotSame(t, x, again)
	st, err = again.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{}, st, "dropped data must not come back")
}

func TestGetContext_Cached(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, store.NewMemoryManager())

	a, err := e.GetContext(ctx, "chan")
	require.NoError(t, err)
	b, err := e.GetContext(ctx, "chan")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "chan", a.ID())
}

func TestGetContext_InvalidIDs(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, store.NewMemoryManager())

	for _, id := range []string{
		"",
		"-leading-dash",
		"../escape",
		"a/b",
		"with space",
		"dot.ted",
		strings.Repeat("a", MaxContextIDLength+1),
	} {
		_, err := e.GetContext(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidContextID, "id %q", id)
		_, err = e.ContextExists(id)
		assert.ErrorIs(t, err, ErrInvalidContextID, "id %q", id)
		assert.ErrorIs(t, e.DropContext(ctx, id), ErrInvalidContextID, "id %q", id)
	}

	for _, id := range []string{"_", "a", "A-b_9", strings.Repeat("z", MaxContextIDLength)} {
		assert.NoError(t, ValidateContextID(id), "id %q", id)
	}
}

func TestDroppedHandle(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, store.NewMemoryManager())

	c, err := e.GetContext(ctx, "room")
	require.NoError(t, err)
	_, err = c.Learn(ctx, []string{"hello", "world"}, true)
	require.NoError(t, err)
	require.NoError(t, e.DropContext(ctx, "room"))

	_, err = c.Learn(ctx, []string{"again"}, true)
	assert.ErrorIs(t, err, ErrContextDropped)
	_, err = c.Generate(ctx, []string{"hello"})
	assert.ErrorIs(t, err, ErrContextDropped)
	_, err = c.Ban(ctx, []string{"x"})
	assert.ErrorIs(t, err, ErrContextDropped)
	_, err = c.Unban(ctx, []string{"x"})
	assert.ErrorIs(t, err, ErrContextDropped)
	_, err = c.Banned(ctx)
	assert.ErrorIs(t, err, ErrContextDropped)
	_, err = c.Stats(ctx)
	assert.True(t, IsDropped(err))

	id, ok := ContextIDOf(err)
	assert.True(t, ok)
	assert.Equal(t, "room", id)
}

func TestDropContext_Unknown(t *testing.T) {
	e := setupEngine(t, store.NewMemoryManager())
	assert.NoError(t, e.DropContext(context.Background(), "never-seen"))
}

func TestContextExists(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, store.NewFileManager(t.TempDir()))

	exists, err := e.ContextExists("lazy")
	require.NoError(t, err)
	assert.False(t, exists, "exists must not create")

	_, err = e.GetContext(ctx, "lazy")
	require.NoError(t, err)
	exists, err = e.ContextExists("lazy")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestContexts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := setupEngine(t, store.NewFileManager(dir))

	for _, id := range []string{"b", "a", "c"} {
		_, err := e.GetContext(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ids, err := e.Contexts()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestGetContext_OpenFailure(t *testing.T) {
	ctx := context.Background()
	mm := store.NewMemoryManager()
	e := setupEngine(t, mm)

	mm.FailOpen = true
	_, err := e.GetContext(ctx, "flaky")
	require.Error(t, err)
	assert.True(t, store.IsStoreUnavailable(err))

	mm.FailOpen = false
	_, err = e.GetContext(ctx, "flaky")
	assert.NoError(t, err, "a failed open is not cached")
}

func TestContextsAreIsolated(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, store.NewMemoryManager())

	a, err := e.GetContext(ctx, "a")
	require.NoError(t, err)
	b, err := e.GetContext(ctx, "b")
	require.NoError(t, err)

	_, err = a.Learn(ctx, []string{"only", "here"}, true)
	require.NoError(t, err)
	_, err = a.Ban(ctx, []string{"here"})
	require.NoError(t, err)

	_, err = b.Generate(ctx, []string{"only"})
	assert.ErrorIs(t, err, model.ErrNoOutput)
	entries, err := b.Banned(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGenericBansApplyEverywhere(t *testing.T) {
	ctx := context.Background()
	e := New(store.NewMemoryManager(), banned.NewGenericList("darn"),
		WithModelConfig(testConfig()), WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(func() { _ = e.Close() })

	for _, id := range []string{"one", "two"} {
		c, err := e.GetContext(ctx, id)
		require.NoError(t, err)
		n, err := c.Learn(ctx, []string{"well", "darnit", "ok"}, true)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		out, err := c.Generate(ctx, []string{"well"})
		require.NoError(t, err)
		assert.Equal(t, "Well ok", out)
	}
}

func TestConcurrentOperations(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t, store.NewFileManager(t.TempDir()))

	const writers = 16
	var g errgroup.Group
	for _, id := range []string{"left", "right"} {
		for i := range writers {
			g.Go(func() error {
				c, err := e.GetContext(ctx, id)
				if err != nil {
					return err
				}
				if _, err := c.Learn(ctx, []string{fmt.Sprintf("w%d", i), "common"}, true); err != nil {
					return err
				}
				_, err = c.Generate(ctx, []string{"common"})
				return err
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, id := range []string{"left", "right"} {
		c, err := e.GetContext(ctx, id)
		require.NoError(t, err)
		st, err := c.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, writers+1, st.Tokens, "context %s", id)
		assert.Equal(t, writers, st.ForwardNodes, "context %s", id)
		assert.Equal(t, 1, st.ReverseNodes, "context %s", id)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	e := New(store.NewMemoryManager(), nil)

	c, err := e.GetContext(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = c.Learn(ctx, []string{"x", "y"}, true)
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = e.GetContext(ctx, "a")
	assert.ErrorIs(t, err, ErrEngineClosed)
	assert.ErrorIs(t, e.DropContext(ctx, "a"), ErrEngineClosed)
}

func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	mc := metrics.NewCollector("tyuo", zaptest.NewLogger(t))
	e := setupEngine(t, store.NewMemoryManager(), WithMetrics(mc))

	c, err := e.GetContext(ctx, "m")
	require.NoError(t, err)
	_, err = c.Learn(ctx, []string{"a", "b", "c"}, true)
	require.NoError(t, err)
	_, err = c.Generate(ctx, []string{"zzz"})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(mc.Registry(), "tyuo_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	err = testutil.GatherAndCompare(mc.Registry(), strings.NewReader(`
# HELP tyuo_tokens_learned_total Tokens accepted by learn across all contexts
# TYPE tyuo_tokens_learned_total counter
tyuo_tokens_learned_total 3
# HELP tyuo_contexts_open Contexts currently held open by the engine
# TYPE tyuo_contexts_open gauge
tyuo_contexts_open 1
`), "tyuo_tokens_learned_total", "tyuo_contexts_open")
	assert.NoError(t, err)
}
