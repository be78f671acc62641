package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/chaty-backend/internal/core/ingestion"
)

func record(id, source, content string, vector []float32) ingestion.VectorRecord {
	return ingestion.VectorRecord{
		ID:          id,
		Source:      source,
		FileSHA256:  "hash",
		ChunkIndex:  0,
		PageContent: content,
		Vector:      vector,
	}
}

func TestStore_AddAndSearch(t *testing.T) {
	store, err := Open(t.TempDir(), "chaty", 3)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []ingestion.VectorRecord{
		record("a", "a.txt", "alpha", []float32{1, 0, 0}),
		record("b", "b.txt", "beta", []float32{0, 1, 0}),
		record("c", "c.txt", "gamma", []float32{0.9, 0.1, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a.txt", hits[0].Source)
	assert.Equal(t, "c.txt", hits[1].Source)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, "chaty", 3)
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, []ingestion.VectorRecord{
		record("a", "a.txt", "alpha", []float32{1, 0, 0}),
		record("b", "b.txt", "beta", []float32{0, 1, 0}),
	}))

	reopened, err := Open(dir, "chaty", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())

	hits, err := reopened.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.txt", hits[0].Source)
	assert.Equal(t, "beta", hits[0].PageContent)
}

func TestStore_AddOverwritesExistingID(t *testing.T) {
	store, err := Open(t.TempDir(), "chaty", 3)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []ingestion.VectorRecord{
		record("a", "a.txt", "old content", []float32{1, 0, 0}),
	}))
	require.NoError(t, store.Add(ctx, []ingestion.VectorRecord{
		record("a", "a.txt", "new content", []float32{0, 1, 0}),
	}))

	assert.Equal(t, 1, store.Count())

	hits, err := store.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new content", hits[0].PageContent)
}

func TestStore_Delete(t *testing.T) {
	store, err := Open(t.TempDir(), "chaty", 3)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []ingestion.VectorRecord{
		record("a", "a.txt", "alpha", []float32{1, 0, 0}),
		record("b", "b.txt", "beta", []float32{0, 1, 0}),
		record("c", "c.txt", "gamma", []float32{0, 0, 1}),
	}))

	require.NoError(t, store.Delete(ctx, []string{"b", "missing"}))
	assert.Equal(t, 2, store.Count())

	found, err := store.ContainsAny(ctx, []string{"b"})
	require.NoError(t, err)
	assert.False(t, found)

	hits, err := store.Search(ctx, []float32{0, 0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c.txt", hits[0].Source)
}

func TestStore_ContainsAny(t *testing.T) {
	store, err := Open(t.TempDir(), "chaty", 3)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []ingestion.VectorRecord{
		record("a", "a.txt", "alpha", []float32{1, 0, 0}),
	}))

	found, err := store.ContainsAny(ctx, []string{"missing", "a"})
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.ContainsAny(ctx, []string{"missing"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_EmptySearchReturnsNoHits(t *testing.T) {
	store, err := Open(t.TempDir(), "chaty", 3)
	require.NoError(t, err)

	hits, err := store.Search(context.Background(), []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_DimensionMismatchIsRejected(t *testing.T) {
	store, err := Open(t.TempDir(), "chaty", 3)
	require.NoError(t, err)
	ctx := context.Background()

	err = store.Add(ctx, []ingestion.VectorRecord{
		record("a", "a.txt", "alpha", []float32{1, 0}),
	})
	require.Error(t, err)

	require.NoError(t, store.Add(ctx, []ingestion.VectorRecord{
		record("a", "a.txt", "alpha", []float32{1, 0, 0}),
	}))
	_, err = store.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
}
