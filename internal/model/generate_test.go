package model

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleKeyword(c *Config) { c.MinKeywords = 1 }

func TestGenerate_EmptyContext(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.Generate(context.Background(), []string{"anything"})
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestGenerate_WalksBothWays(t *testing.T) {
	f := newFixture(t, singleKeyword)
	f.learn(t, "hello", "world")

	out, err := f.m.Generate(context.Background(), []string{"World"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)
}

func TestGenerate_SingleToken(t *testing.T) {
	f := newFixture(t, singleKeyword)
	f.learn(t, "solo")

	out, err := f.m.Generate(context.Background(), []string{"solo"})
	require.NoError(t, err)
	assert.Equal(t, "Solo", out)
}

func TestGenerate_PrefersCommonestForm(t *testing.T) {
	f := newFixture(t, singleKeyword)
	f.learn(t, "NASA", "rocks")
	f.learn(t, "NASA", "rocks")
	f.learn(t, "nasa", "rocks")

	out, err := f.m.Generate(context.Background(), []string{"rocks"})
	require.NoError(t, err)
	assert.Equal(t, "NASA rocks", out)
}

func TestGenerate_SkipsStopWords(t *testing.T) {
	f := newFixture(t, singleKeyword, func(c *Config) { c.StopWords = []string{"The"} })
	f.learn(t, "the", "cat")

	out, err := f.m.Generate(context.Background(), []string{"the"})
	require.NoError(t, err)
	assert.Equal(t, "The cat", out, "keyword falls back to a random non-stop token")
}

func TestGenerate_SkipsBannedKeywords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, singleKeyword)
	f.learn(t, "hello", "world")
	_, err := f.m.Ban(ctx, []string{"world"})
	require.NoError(t, err)

	for range 5 {
		out, err := f.m.Generate(ctx, []string{"world"})
		require.NoError(t, err)
		assert.Equal(t, "Hello", out)
	}
}

func TestGenerate_AllBanned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.learn(t, "hello", "world")
	_, err := f.m.Ban(ctx, []string{"o"})
	require.NoError(t, err)

	_, err = f.m.Generate(ctx, []string{"hello"})
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestGenerate_PrefersKeywordCoverage(t *testing.T) {
	f := newFixture(t)
	f.learn(t, "a", "b", "c")
	f.learn(t, "x", "y")

	out, err := f.m.Generate(context.Background(), []string{"x", "a", "c"})
	require.NoError(t, err)
	assert.Equal(t, "A b c", out)
}

func TestGenerate_AgedTransitionsIgnored(t *testing.T) {
	f := newFixture(t, singleKeyword)
	f.learn(t, "hello", "world")
	f.clock.Advance(f.m.cfg.Policy.MaxAge + time.Second)

	out, err := f.m.Generate(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestGenerate_WalkCap(t *testing.T) {
	f := newFixture(t, singleKeyword, func(c *Config) { c.MaxWalkSteps = 3 })
	f.learn(t, "la", "la")

	out, err := f.m.Generate(context.Background(), []string{"la"})
	require.NoError(t, err)
	assert.Equal(t, "La la la la la la la", out)
}

func TestGenerate_DeterministicForSeededRand(t *testing.T) {
	corpus := [][]string{
		{"the", "quick", "brown", "fox"},
		{"the", "lazy", "dog", "sleeps"},
		{"a", "quick", "dog", "runs"},
		{"the", "fox", "runs", "away"},
	}
	run := func() string {
		f := newFixture(t, singleKeyword, func(c *Config) { c.Rand = rand.New(rand.NewPCG(7, 11)) })
		for _, line := range corpus {
			f.learn(t, line...)
		}
		out, err := f.m.Generate(context.Background(), []string{"dog"})
		require.NoError(t, err)
		return out
	}

	first := run()
	assert.Equal(t, first, run())
	assert.Contains(t, strings.ToLower(first), "dog")
}
