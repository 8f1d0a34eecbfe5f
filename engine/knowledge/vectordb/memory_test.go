package vectordb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(&Config{Dimension: 4})
	records := []Record{
		{ID: "a", Text: "alpha", Embedding: []float32{1, 0, 0, 0}, Metadata: map[string]any{"section": "Monitoring"}},
		{ID: "b", Text: "bravo", Embedding: []float32{0, 1, 0, 0}, Metadata: map[string]any{"section": "Consent"}},
	}
	require.NoError(t, store.Upsert(ctx, "gcp", records))

	t.Run("Should upsert and search by cosine", func(t *testing.T) {
		matches, err := store.Search(ctx, []float32{1, 0, 0, 0}, SearchOptions{Namespace: "gcp", TopK: 1})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].ID)
		assert.Equal(t, "alpha", matches[0].Text)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
		assert.Nil(t, matches[0].Embedding)
	})

	t.Run("Should filter by metadata expression", func(t *testing.T) {
		matches, err := store.Search(ctx, []float32{1, 0, 0, 0}, SearchOptions{
			Namespace: "gcp",
			TopK:      2,
			Filter:    filter.Equal("section", "Consent"),
		})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "b", matches[0].ID)
	})

	t.Run("Should isolate namespaces", func(t *testing.T) {
		matches, err := store.Search(ctx, []float32{1, 0, 0, 0}, SearchOptions{Namespace: "other", TopK: 4})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("Should replace records with the same id", func(t *testing.T) {
		local := newMemoryStore(&Config{Dimension: 2})
		require.NoError(t, local.Upsert(ctx, "ns", []Record{{ID: "x", Text: "old", Embedding: []float32{1, 0}}}))
		require.NoError(t, local.Upsert(ctx, "ns", []Record{{ID: "x", Text: "new", Embedding: []float32{0, 1}}}))
		assert.Equal(t, 1, local.count("ns"))
		matches, err := local.Search(ctx, []float32{0, 1}, SearchOptions{Namespace: "ns"})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "new", matches[0].Text)
	})

	t.Run("Should break score ties by ascending id", func(t *testing.T) {
		local := newMemoryStore(&Config{Dimension: 2})
		require.NoError(t, local.Upsert(ctx, "ns", []Record{
			{ID: "c", Embedding: []float32{1, 0}},
			{ID: "a", Embedding: []float32{1, 0}},
			{ID: "b", Embedding: []float32{1, 0}},
		}))
		matches, err := local.Search(ctx, []float32{1, 0}, SearchOptions{Namespace: "ns", TopK: 3})
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{matches[0].ID, matches[1].ID, matches[2].ID})
	})

	t.Run("Should return vectors when asked", func(t *testing.T) {
		matches, err := store.Search(ctx, []float32{0, 1, 0, 0}, SearchOptions{Namespace: "gcp", TopK: 1, IncludeVectors: true})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, []float32{0, 1, 0, 0}, matches[0].Embedding)
	})

	t.Run("Should not leak nested metadata mutations into stored records", func(t *testing.T) {
		local := newMemoryStore(&Config{Dimension: 2})
		meta := map[string]any{"source": []any{"ICH-GCP"}}
		require.NoError(t, local.Upsert(ctx, "ns", []Record{{ID: "x", Embedding: []float32{1, 0}, Metadata: meta}}))
		meta["source"].([]any)[0] = "mutated before search"

		first, err := local.Search(ctx, []float32{1, 0}, SearchOptions{Namespace: "ns"})
		require.NoError(t, err)
		require.Len(t, first, 1)
		assert.Equal(t, []any{"ICH-GCP"}, first[0].Metadata["source"])
		first[0].Metadata["source"].([]any)[0] = "mutated after search"

		second, err := local.Search(ctx, []float32{1, 0}, SearchOptions{Namespace: "ns"})
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, []any{"ICH-GCP"}, second[0].Metadata["source"])
	})

	t.Run("Should fail upsert when dimension mismatches", func(t *testing.T) {
		err := newMemoryStore(&Config{Dimension: 4}).Upsert(ctx, "ns", []Record{{ID: "bad", Embedding: []float32{1, 1, 1}}})
		require.Error(t, err)
	})

	t.Run("Should fail search when query dimension mismatches", func(t *testing.T) {
		_, err := store.Search(ctx, []float32{1, 0, 0}, SearchOptions{Namespace: "gcp", TopK: 1})
		require.Error(t, err)
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should persist records across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "index.json")
		store, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, "gcp", []Record{
			{ID: "gcp-0", Text: "sponsor duties", Embedding: []float32{1, 0}, Metadata: map[string]any{"chunk_index": 0}},
		}))
		reopened, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		matches, err := reopened.Search(ctx, []float32{1, 0}, SearchOptions{Namespace: "gcp"})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "sponsor duties", matches[0].Text)
		assert.EqualValues(t, 0, matches[0].Metadata["chunk_index"])
	})

	t.Run("Should reject a snapshot with another dimension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.json")
		store, err := newFileStore(&Config{Path: path, Dimension: 2})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, "gcp", []Record{{ID: "x", Embedding: []float32{1, 0}}}))
		_, err = newFileStore(&Config{Path: path, Dimension: 3})
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("Should build an instrumented memory store", func(t *testing.T) {
		store, err := New(ctx, &Config{Provider: ProviderMemory, Dimension: 2})
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, "ns", []Record{{ID: "a", Embedding: []float32{1, 0}}}))
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{Namespace: "ns"})
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("Should tag store failures with the index error code", func(t *testing.T) {
		store, err := New(ctx, &Config{Provider: ProviderMemory, Dimension: 2})
		require.NoError(t, err)
		_, err = store.Search(ctx, []float32{1, 0, 0}, SearchOptions{Namespace: "ns"})
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeIndex))
	})

	t.Run("Should reject incomplete configuration", func(t *testing.T) {
		cases := []*Config{
			nil,
			{Dimension: 2},
			{Provider: ProviderMemory},
			{Provider: ProviderPGVector, Dimension: 2},
			{Provider: ProviderFilesystem, Dimension: 2},
			{Provider: ProviderPinecone, Dimension: 2},
			{Provider: "faiss", Dimension: 2},
		}
		for _, cfg := range cases {
			_, err := New(ctx, cfg)
			require.Error(t, err)
			assert.True(t, core.IsCode(err, core.ErrCodeIndex))
		}
	})
}
