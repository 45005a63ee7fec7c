package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBoundaries(t *testing.T) {
	text := strings.Repeat("a", 5000)

	chunks, err := Split(text, Options{ChunkSize: 2000, Overlap: 200})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 2000, chunks[0].End)
	assert.Equal(t, 1800, chunks[1].Start)
	assert.Equal(t, 3800, chunks[1].End)
	assert.Equal(t, 3600, chunks[2].Start)
	assert.Equal(t, 5000, chunks[2].End)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, c.End-c.Start, len([]rune(c.Content)))
	}
}

func TestSplitDeterminism(t *testing.T) {
	text := strings.Repeat("the quick brown fox ", 500)

	first, err := Split(text, Options{ChunkSize: 750, Overlap: 100})
	require.NoError(t, err)
	second, err := Split(text, Options{ChunkSize: 750, Overlap: 100})
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestSplitShortText(t *testing.T) {
	chunks, err := Split("hello", Options{ChunkSize: 2000, Overlap: 200})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 5, chunks[0].End)
}

func TestSplitEmptyText(t *testing.T) {
	chunks, err := Split("", Options{ChunkSize: 100, Overlap: 10})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "overlap equals size", opts: Options{ChunkSize: 100, Overlap: 100}},
		{name: "overlap exceeds size", opts: Options{ChunkSize: 100, Overlap: 150}},
		{name: "zero size", opts: Options{ChunkSize: 0, Overlap: 0}},
		{name: "negative overlap", opts: Options{ChunkSize: 100, Overlap: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split("some text", tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestSplitMultibyte(t *testing.T) {
	// Offsets are character offsets, not byte offsets.
	text := strings.Repeat("héllo wörld ", 100) // 1200 runes
	chunks, err := Split(text, Options{ChunkSize: 500, Overlap: 50})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	last := chunks[len(chunks)-1]
	assert.Equal(t, 1200, last.End)
	for _, c := range chunks {
		assert.Equal(t, c.End-c.Start, len([]rune(c.Content)))
	}
}
