package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_BlankTextYieldsNoChunks(t *testing.T) {
	s := NewSplitter(100, 20)

	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("   \n\n\t  "))
}

func TestSplitter_ShortTextIsSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)

	chunks := s.Split("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitter_PrefersParagraphBoundaries(t *testing.T) {
	s := NewSplitter(40, 5)
	text := "first paragraph here\n\nsecond paragraph here"

	chunks := s.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "first paragraph here", chunks[0])
	assert.Equal(t, "second paragraph here", chunks[1])
}

func TestSplitter_ChunksRespectSizeLimit(t *testing.T) {
	size := 50
	s := NewSplitter(size, 10)
	text := strings.Repeat("some words that should be split cleanly. ", 20)

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), size)
	}
}

func TestSplitter_HardCutsTextWithoutBoundaries(t *testing.T) {
	size := 10
	s := NewSplitter(size, 2)
	text := strings.Repeat("a", 35)

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	var total int
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), size)
		total += len(chunk)
	}
	assert.GreaterOrEqual(t, total, len(text))
}

func TestSplitter_IsDeterministic(t *testing.T) {
	s := NewSplitter(60, 15)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 10)

	first := s.Split(text)
	second := s.Split(text)
	assert.Equal(t, first, second)
}

func TestSplitter_ConsecutiveChunksOverlap(t *testing.T) {
	s := NewSplitter(40, 15)
	text := strings.Repeat("alpha beta gamma delta epsilon zeta ", 5)

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		head := strings.Fields(chunks[i])[0]
		assert.Contains(t, chunks[i-1], head)
	}
}

func TestNewSplitter_GuardsInvalidParameters(t *testing.T) {
	s := NewSplitter(0, -1)
	assert.Equal(t, DefaultChunkSize, s.chunkSize)
	assert.Equal(t, DefaultChunkOverlap, s.chunkOverlap)

	s = NewSplitter(10, 50)
	assert.Equal(t, 10, s.chunkSize)
	assert.Equal(t, 5, s.chunkOverlap)
}
