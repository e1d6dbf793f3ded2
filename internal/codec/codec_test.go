package codec

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triple [3]int64

var sampleTriples = []triple{
	{-2147483648, 3, 1700000000},
	{5, 1, 1700000100},
}

func TestEncodeDecode_BothFormats(t *testing.T) {
	for _, f := range []Format{FormatJSONZlib, FormatCBORZstd} {
		t.Run(f.String(), func(t *testing.T) {
			blob, err := Encode(f, sampleTriples)
			require.NoError(t, err)

			var got []triple
			detected, err := Decode(blob, &got)
			require.NoError(t, err)
			assert.Equal(t, f, detected)
			assert.Equal(t, sampleTriples, got)
		})
	}
}

func TestEncodeDecode_Map(t *testing.T) {
	forms := map[string]uint32{"Hello": 2, "hello": 5, "HELLO": 1}
	for _, f := range []Format{FormatJSONZlib, FormatCBORZstd} {
		blob, err := Encode(f, forms)
		require.NoError(t, err)

		var got map[string]uint32
		_, err = Decode(blob, &got)
		require.NoError(t, err)
		assert.Equal(t, forms, got)
	}
}

func TestSniff(t *testing.T) {
	zl, err := Encode(FormatJSONZlib, sampleTriples)
	require.NoError(t, err)
	zs, err := Encode(FormatCBORZstd, sampleTriples)
	require.NoError(t, err)

	f, ok := Sniff(zl)
	assert.True(t, ok)
	assert.Equal(t, FormatJSONZlib, f)

	f, ok = Sniff(zs)
	assert.True(t, ok)
	assert.Equal(t, FormatCBORZstd, f)

	_, ok = Sniff([]byte("[[1,2,3]]"))
	assert.False(t, ok)
	_, ok = Sniff(nil)
	assert.False(t, ok)
}

func TestDecode_UnknownFormat(t *testing.T) {
	var got []triple
	_, err := Decode([]byte("not a blob"), &got)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDecode_TruncatedZlib(t *testing.T) {
	blob, err := Encode(FormatJSONZlib, sampleTriples)
	require.NoError(t, err)

	var got []triple
	_, err = Decode(blob[:len(blob)/2], &got)
	assert.Error(t, err)
}

func TestDecode_WrongShape(t *testing.T) {
	blob, err := Encode(FormatJSONZlib, map[string]string{"a": "b"})
	require.NoError(t, err)

	var got []triple
	_, err = Decode(blob, &got)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json-zlib")
	require.NoError(t, err)
	assert.Equal(t, FormatJSONZlib, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSONZlib, f)

	f, err = ParseFormat("cbor-zstd")
	require.NoError(t, err)
	assert.Equal(t, FormatCBORZstd, f)

	_, err = ParseFormat("lz4")
	assert.Error(t, err)
	assert.Equal(t, "unknown(9)", Format(9).String())
}

func TestPayload_JSONLayout(t *testing.T) {
	blob, err := Encode(FormatJSONZlib, sampleTriples)
	require.NoError(t, err)

	payload, f, err := Payload(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatJSONZlib, f)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "adjacency_json", payload)
}
