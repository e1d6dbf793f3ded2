package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tyuo/internal/store"
)

// gatedManager holds the first Open of one id until release is closed.
type gatedManager struct {
	*store.MemoryManager
	slow    string
	entered chan struct{}
	release chan struct{}
	opens   atomic.Int32
}

func newGatedManager(slow string) *gatedManager {
	return &gatedManager{
		MemoryManager: store.NewMemoryManager(),
		slow:          slow,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (g *gatedManager) Open(ctx context.Context, id string) (store.Store, error) {
	if id == g.slow && g.opens.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.MemoryManager.Open(ctx, id)
}

func waitOpen(t *testing.T, g *gatedManager) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("open never started")
	}
}

func TestGetContext_SlowOpenDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	gm := newGatedManager("slow")
	e := setupEngine(t, gm)

	cached, err := e.GetContext(ctx, "cached")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.GetContext(ctx, "slow")
		done <- err
	}()
	waitOpen(t, gm)

	again, err := e.GetContext(ctx, "cached")
	require.NoError(t, err)
	assert.Same(t, cached, again)

	fresh, err := e.GetContext(ctx, "fresh")
	require.NoError(t, err)
	_, err = fresh.Learn(ctx, []string{"still", "working"}, true)
	require.NoError(t, err)

	close(gm.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("slow open never finished")
	}
}

func TestGetContext_ConcurrentFirstLookupsShareOneOpen(t *testing.T) {
	ctx := context.Background()
	gm := newGatedManager("room")
	e := setupEngine(t, gm)

	got := make([]*Context, 8)
	var g errgroup.Group
	for i := range got {
		g.Go(func() error {
			c, err := e.GetContext(ctx, "room")
			got[i] = c
			return err
		})
	}
	waitOpen(t, gm)
	close(gm.release)
	require.NoError(t, g.Wait())

	for _, c := range got[1:] {
		assert.Same(t, got[0], c)
	}
	assert.Equal(t, int32(1), gm.opens.Load())
}

func TestGetContext_DropDuringOpenReopens(t *testing.T) {
	ctx := context.Background()
	gm := newGatedManager("room")
	e := setupEngine(t, gm)

	type result struct {
		c   *Context
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := e.GetContext(ctx, "room")
		done <- result{c, err}
	}()
	waitOpen(t, gm)

	require.NoError(t, e.DropContext(ctx, "room"))
	close(gm.release)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("open never finished")
	}
	require.NoError(t, res.err)
	assert.Equal(t, int32(2), gm.opens.Load(), "the stale open is discarded")

	_, err := res.c.Learn(ctx, []string{"hello", "world"}, true)
	require.NoError(t, err, "the published handle is live")

	again, err := e.GetContext(ctx, "room")
	require.NoError(t, err)
	assert.Same(t, res.c, again)
}

func TestGetContext_CloseDuringOpen(t *testing.T) {
	ctx := context.Background()
	gm := newGatedManager("room")
	e := setupEngine(t, gm)

	done := make(chan error, 1)
	go func() {
		_, err := e.GetContext(ctx, "room")
		done <- err
	}()
	waitOpen(t, gm)

	require.NoError(t, e.Close())
	close(gm.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrEngineClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("open never finished")
	}
}
