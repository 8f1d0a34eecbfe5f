package embedder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcpassist/gcpassist/engine/core"
)

type stubEmbedder struct {
	mu        sync.Mutex
	dim       int
	err       error
	docCalls  [][]string
	queryHits int
}

func (s *stubEmbedder) vector(text string) []float32 {
	v := make([]float32, s.dim)
	for i := range v {
		v[i] = float32(len(text) + i)
	}
	return v
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docCalls = append(s.docCalls, append([]string(nil), texts...))
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = s.vector(text)
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryHits++
	if s.err != nil {
		return nil, s.err
	}
	return s.vector(text), nil
}

func testConfig() *Config {
	return &Config{Provider: ProviderOpenAI, Model: "text-embedding-3-small", Dimension: 3, BatchSize: 8}
}

func TestAdapter(t *testing.T) {
	t.Run("Should embed documents in input order", func(t *testing.T) {
		stub := &stubEmbedder{dim: 3}
		a, err := Wrap(testConfig(), stub)
		require.NoError(t, err)
		vectors, err := a.EmbedDocuments(t.Context(), []string{"a", "bbb"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 2, 3}, {3, 4, 5}}, vectors)
		assert.Equal(t, 3, a.Dimension())
		assert.Equal(t, 8, a.BatchSize())
	})

	t.Run("Should serve repeated texts from the cache", func(t *testing.T) {
		stub := &stubEmbedder{dim: 3}
		cfg := testConfig()
		cfg.CacheSize = 16
		a, err := Wrap(cfg, stub)
		require.NoError(t, err)
		_, err = a.EmbedDocuments(t.Context(), []string{"x", "y", "x"})
		require.NoError(t, err)
		require.Len(t, stub.docCalls, 1)
		assert.Equal(t, []string{"x", "y"}, stub.docCalls[0])

		vectors, err := a.EmbedDocuments(t.Context(), []string{"y", "z"})
		require.NoError(t, err)
		require.Len(t, stub.docCalls, 2)
		assert.Equal(t, []string{"z"}, stub.docCalls[1])
		assert.Len(t, vectors, 2)

		q1, err := a.EmbedQuery(t.Context(), "what is gcp")
		require.NoError(t, err)
		q1[0] = 99
		q2, err := a.EmbedQuery(t.Context(), "what is gcp")
		require.NoError(t, err)
		assert.Equal(t, 1, stub.queryHits)
		assert.NotEqual(t, float32(99), q2[0])
	})

	t.Run("Should wrap provider failures as embedding errors", func(t *testing.T) {
		stub := &stubEmbedder{dim: 3, err: errors.New("429 rate limit")}
		a, err := Wrap(testConfig(), stub)
		require.NoError(t, err)
		_, err = a.EmbedDocuments(t.Context(), []string{"a"})
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeEmbedding))
		_, err = a.EmbedQuery(t.Context(), "a")
		assert.True(t, core.IsCode(err, core.ErrCodeEmbedding))
	})

	t.Run("Should reject vectors of the wrong dimension", func(t *testing.T) {
		stub := &stubEmbedder{dim: 2}
		a, err := Wrap(testConfig(), stub)
		require.NoError(t, err)
		_, err = a.EmbedQuery(t.Context(), "a")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeEmbedding))
	})

	t.Run("Should return nothing for an empty batch", func(t *testing.T) {
		stub := &stubEmbedder{dim: 3}
		a, err := Wrap(testConfig(), stub)
		require.NoError(t, err)
		vectors, err := a.EmbedDocuments(t.Context(), nil)
		require.NoError(t, err)
		assert.Nil(t, vectors)
		assert.Empty(t, stub.docCalls)
	})

	t.Run("Should validate configuration", func(t *testing.T) {
		stub := &stubEmbedder{dim: 3}
		_, err := Wrap(nil, stub)
		assert.Error(t, err)
		_, err = Wrap(testConfig(), nil)
		assert.Error(t, err)
		bad := testConfig()
		bad.Dimension = 0
		_, err = Wrap(bad, stub)
		assert.ErrorIs(t, err, errInvalidDimension)
		bad = testConfig()
		bad.Model = " "
		_, err = Wrap(bad, stub)
		assert.ErrorIs(t, err, errMissingModel)
		_, err = New(&Config{Provider: "cohere", Model: "m", Dimension: 3, BatchSize: 1})
		assert.Error(t, err)
	})
}
