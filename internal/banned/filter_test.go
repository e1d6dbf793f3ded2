package banned

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/store"
)

func seed(t *testing.T, s store.Store, rows ...store.TokenRow) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.PutTokens(ctx, rows) }))
}

func ban(t *testing.T, f *Filter, s store.Store, texts ...string) []Entry {
	t.Helper()
	var added []Entry
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		var err error
		added, err = f.Ban(ctx, tx, texts)
		return err
	}))
	f.Apply(added, nil)
	return added
}

func TestBan_LinksExistingToken(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, store.TokenRow{ID: 10, Text: "world", Occurrences: 1})
	f := NewFilter(nil, zaptest.NewLogger(t))

	added := ban(t, f, s, "World", "nothing", "world")
	assert.Equal(t, []Entry{
		{Text: "nothing"},
		{Text: "world", TokenID: 10, Linked: true},
	}, added)

	assert.True(t, f.IsBannedByID(10))
	assert.False(t, f.IsBannedByID(11))
	assert.True(t, f.IsBannedByText("WORLD"))
}

func TestBan_IgnoresDiacritics(t *testing.T) {
	s := store.NewMemory()
	seed(t, s, store.TokenRow{ID: 3, Text: "cafe", Occurrences: 1})
	f := NewFilter(NewGenericList("naïve"), nil)

	added := ban(t, f, s, "Café")
	assert.Equal(t, []Entry{{Text: "cafe", TokenID: 3, Linked: true}}, added)
	assert.True(t, f.IsBannedByText("café"))
	assert.True(t, f.IsBannedByText("CAFES"))
	assert.True(t, f.IsBannedByText("naive"))
}

func TestBan_SkipsExisting(t *testing.T) {
	s := store.NewMemory()
	f := NewFilter(nil, nil)

	ban(t, f, s, "spam")
	again := ban(t, f, s, "SPAM", " spam ")
	assert.Empty(t, again)
	assert.Len(t, f.Entries(), 1)
}

func TestBan_NotVisibleBeforeApply(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	f := NewFilter(nil, nil)

	var added []Entry
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		var err error
		added, err = f.Ban(ctx, tx, []string{"rude"})
		return err
	}))
	assert.False(t, f.IsBannedByText("rude"))

	f.Apply(added, nil)
	assert.True(t, f.IsBannedByText("rude"))
}

func TestIsBannedByText_Substring(t *testing.T) {
	s := store.NewMemory()
	f := NewFilter(NewGenericList("heck"), nil)
	ban(t, f, s, "ass")

	assert.True(t, f.IsBannedByText("grass"))
	assert.True(t, f.IsBannedByText("Ass"))
	assert.True(t, f.IsBannedByText("fine", "CHECKED"))
	assert.False(t, f.IsBannedByText("as", "tree"))
	assert.False(t, f.IsBannedByText())
	assert.False(t, f.IsBannedByText(""))
}

func TestIsBannedByText_ContainmentProperty(t *testing.T) {
	alphabet := rapid.SampledFrom([]rune("abc"))
	word := rapid.StringOfN(alphabet, 1, 6, -1)

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		local := rapid.SliceOfN(word, 0, 4).Draw(rt, "local")
		generic := rapid.SliceOfN(word, 0, 3).Draw(rt, "generic")
		text := rapid.StringOfN(alphabet, 0, 10, -1).Draw(rt, "text")

		s := store.NewMemory()
		f := NewFilter(NewGenericList(generic...), nil)
		var added []Entry
		require.NoError(rt, s.Update(ctx, func(tx store.Tx) error {
			var err error
			added, err = f.Ban(ctx, tx, local)
			return err
		}))
		f.Apply(added, nil)

		want := false
		for _, b := range append(local, generic...) {
			if strings.Contains(text, b) {
				want = true
			}
		}
		if text == "" {
			want = false
		}
		require.Equal(rt, want, f.IsBannedByText(text))
	})
}

func TestUnban(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s, store.TokenRow{ID: 4, Text: "word", Occurrences: 1})
	f := NewFilter(nil, nil)
	ban(t, f, s, "word", "other")

	var removed []string
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		var err error
		removed, err = f.Unban(ctx, tx, []string{"WORD", "never-banned", "wor"})
		return err
	}))
	f.Apply(nil, removed)

	assert.Equal(t, []string{"word"}, removed)
	assert.False(t, f.IsBannedByText("word"))
	assert.False(t, f.IsBannedByID(4))
	assert.True(t, f.IsBannedByText("other"))

	rows, err := s.Banned(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.BannedRow{{Text: "other"}}, rows)
}

func TestLoad_RestoresStateAndGenericIDs(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s,
		store.TokenRow{ID: 1, Text: "world", Occurrences: 1},
		store.TokenRow{ID: 2, Text: "darn", Occurrences: 1},
		store.TokenRow{ID: 3, Text: "darned", Occurrences: 1},
		store.TokenRow{ID: 4, Text: "fine", Occurrences: 1},
	)
	ban(t, NewFilter(nil, nil), s, "world")

	f := NewFilter(NewGenericList("darn"), zaptest.NewLogger(t))
	require.NoError(t, f.Load(ctx, s))

	assert.Equal(t, []Entry{{Text: "world", TokenID: 1, Linked: true}}, f.Entries())
	assert.True(t, f.IsBannedByID(1))
	assert.True(t, f.IsBannedByID(2))
	assert.True(t, f.IsBannedByID(3))
	assert.False(t, f.IsBannedByID(4))
	assert.False(t, f.IsBannedByID(ir.TokenID(99)))
}
