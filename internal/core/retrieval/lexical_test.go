package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/chaty-backend/internal/core/ingestion"
)

func lexicalCorpus() map[string][]ingestion.StoredChunk {
	return map[string][]ingestion.StoredChunk{
		"ingest/cats.txt": {
			{PageContent: "cats are small domesticated animals", FileSHA256: "h1", ChunkIndex: 0},
			{PageContent: "a cat sleeps most of the day", FileSHA256: "h1", ChunkIndex: 1},
		},
		"ingest/dogs.txt": {
			{PageContent: "dogs are loyal animals that bark", FileSHA256: "h2", ChunkIndex: 0},
		},
	}
}

func TestLexicalIndex_RanksMatchingChunksFirst(t *testing.T) {
	idx := newLexicalIndex(lexicalCorpus())

	hits := idx.search("dogs bark", 2)
	require.NotEmpty(t, hits)
	assert.Equal(t, "ingest/dogs.txt", hits[0].Source)
}

func TestLexicalIndex_ScoresAreZero(t *testing.T) {
	idx := newLexicalIndex(lexicalCorpus())

	hits := idx.search("cats", 4)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Equal(t, 0.0, hit.Score)
	}
}

func TestLexicalIndex_RespectsTopK(t *testing.T) {
	idx := newLexicalIndex(lexicalCorpus())

	hits := idx.search("animals", 1)
	assert.Len(t, hits, 1)
}

func TestLexicalIndex_NoMatchYieldsNoHits(t *testing.T) {
	idx := newLexicalIndex(lexicalCorpus())

	assert.Empty(t, idx.search("quantum chromodynamics", 4))
	assert.Empty(t, idx.search("", 4))
	assert.Empty(t, idx.search("cats", 0))
}

func TestLexicalIndex_EmptyCorpus(t *testing.T) {
	idx := newLexicalIndex(map[string][]ingestion.StoredChunk{})

	assert.Empty(t, idx.search("anything", 4))
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Cats, dogs & 42 birds! Don't stop.")
	assert.Equal(t, []string{"cats", "dogs", "42", "birds", "don't", "stop"}, tokens)
}
