package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

func TestQdrantStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Should upsert points with stable uuids and namespace payload", func(t *testing.T) {
		var body map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/collections/clinical/points", r.URL.Path)
			assert.Equal(t, "secret", r.Header.Get("api-key"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
		}))
		defer srv.Close()
		store, err := newQdrantStore(ctx, &Config{DSN: srv.URL, Collection: "clinical", Dimension: 2, APIKey: "secret"})
		require.NoError(t, err)
		err = store.Upsert(ctx, "gcp", []Record{{ID: "gcp-0", Text: "consent", Embedding: []float32{1, 0}}})
		require.NoError(t, err)
		points, ok := body["points"].([]any)
		require.True(t, ok)
		require.Len(t, points, 1)
		point := points[0].(map[string]any)
		_, parseErr := uuid.Parse(point["id"].(string))
		assert.NoError(t, parseErr)
		assert.Equal(t, qdrantPointID("gcp", "gcp-0"), point["id"])
		payload := point["payload"].(map[string]any)
		assert.Equal(t, "gcp-0", payload[qdrantChunkIDKey])
		assert.Equal(t, "gcp", payload[qdrantNamespaceKey])
		assert.Equal(t, "consent", payload[qdrantTextKey])
	})

	t.Run("Should search within the namespace and restore chunk ids", func(t *testing.T) {
		var request map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/collections/clinical/points/search", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
			_, _ = w.Write([]byte(`{"result":[
				{"id":"b5d3","score":0.5,"payload":{"_chunk_id":"gcp-1","_namespace":"gcp","text":"second","section":"Monitoring"}},
				{"id":"a1c2","score":0.9,"payload":{"_chunk_id":"gcp-0","_namespace":"gcp","text":"first","section":"Monitoring"}}
			]}`))
		}))
		defer srv.Close()
		store, err := newQdrantStore(ctx, &Config{DSN: srv.URL, Collection: "clinical", Dimension: 2})
		require.NoError(t, err)
		matches, err := store.Search(ctx, []float32{1, 0}, SearchOptions{
			Namespace: "gcp",
			TopK:      2,
			Filter:    filter.Equal("section", "Monitoring"),
		})
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "gcp-0", matches[0].ID)
		assert.Equal(t, "first", matches[0].Text)
		assert.Equal(t, map[string]any{"section": "Monitoring"}, matches[0].Metadata)
		must := request["filter"].(map[string]any)["must"].([]any)
		require.Len(t, must, 2)
		assert.Equal(t, map[string]any{"key": "_namespace", "match": map[string]any{"value": "gcp"}}, must[0])
		assert.Equal(t, map[string]any{"key": "section", "match": map[string]any{"value": "Monitoring"}}, must[1])
	})

	t.Run("Should report api errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"status":{"error":"Collection not found"}}`))
		}))
		defer srv.Close()
		store, err := newQdrantStore(ctx, &Config{DSN: srv.URL, Collection: "missing", Dimension: 2})
		require.NoError(t, err)
		_, err = store.Search(ctx, []float32{1, 0}, SearchOptions{Namespace: "gcp"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Collection not found")
	})
}

func TestBuildQdrantCondition(t *testing.T) {
	t.Run("Should map operators to must, should and must_not", func(t *testing.T) {
		cond, err := buildQdrantCondition(filter.AnyOf(
			filter.OneOf("section", "Consent"),
			filter.Negate(filter.Equal("source", "e6.pdf")),
		))
		require.NoError(t, err)
		should := cond["should"].([]any)
		require.Len(t, should, 2)
		assert.Equal(t, map[string]any{"key": "section", "match": map[string]any{"any": []any{"Consent"}}}, should[0])
		assert.Contains(t, should[1], "must_not")
	})

	t.Run("Should reject ranges over strings", func(t *testing.T) {
		_, err := buildQdrantCondition(filter.NewComparison(filter.Gt, "section", "A"))
		assert.Error(t, err)
	})
}
