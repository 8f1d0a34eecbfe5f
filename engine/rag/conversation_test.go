package rag_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge"
	"github.com/gcpassist/gcpassist/engine/knowledge/retriever"
	"github.com/gcpassist/gcpassist/engine/knowledge/selfquery"
	"github.com/gcpassist/gcpassist/engine/knowledge/vectordb"
	"github.com/gcpassist/gcpassist/engine/llm"
	"github.com/gcpassist/gcpassist/engine/rag"
)

type constantEmbedder struct{}

func (constantEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constantEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubRetriever struct {
	chunks []knowledge.RetrievedChunk
	err    error
	k      int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, k int) ([]knowledge.RetrievedChunk, error) {
	s.k = k
	return s.chunks, s.err
}

type stubGenerator struct {
	text    string
	context string
}

func (s *stubGenerator) Generate(_ context.Context, _ string, contextText string) string {
	s.context = contextText
	return s.text
}

func newGCPRetriever(t *testing.T, translator llm.Client) *retriever.Service {
	t.Helper()
	store, err := vectordb.New(t.Context(), &vectordb.Config{Provider: vectordb.ProviderMemory, Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(t.Context(), "gcp_guidelines", []vectordb.Record{{
		ID:        "gcp_guidelines-0",
		Text:      "Good Clinical Practice (GCP) is an international ethical and scientific quality standard.",
		Embedding: []float32{1, 0},
		Metadata:  map[string]any{"source": "ICH-GCP", "page": 5},
	}}))
	svc, err := retriever.NewService(selfquery.New(translator), constantEmbedder{}, store, retriever.Options{})
	require.NoError(t, err)
	return svc
}

func TestConversation_Answer(t *testing.T) {
	t.Run("Should answer with citations end to end", func(t *testing.T) {
		translator := llm.Func(func(context.Context, string) (string, error) {
			return `{"query": "GCP definition", "filter": {"comparator": "eq", "attribute": "source", "value": "ICH-GCP"}}`, nil
		})
		var prompt string
		answerer := llm.Func(func(_ context.Context, p string) (string, error) {
			prompt = p
			return "GCP is an international quality standard [ICH-GCP, p.5].", nil
		})
		gen, err := rag.NewGenerator(answerer)
		require.NoError(t, err)
		conv, err := rag.NewConversation(newGCPRetriever(t, translator), gen, rag.Settings{K: 4})
		require.NoError(t, err)

		resp, err := conv.Answer(t.Context(), rag.Request{Message: "what is GCP?"})
		require.NoError(t, err)
		assert.Equal(t, rag.RoleAssistant, resp.Role)
		assert.Equal(t, "GCP is an international quality standard [ICH-GCP, p.5].", resp.Content)
		five := 5
		assert.Contains(t, resp.Citations, rag.Citation{Source: "ICH-GCP", Page: &five})
		_, err = uuid.Parse(resp.ID)
		assert.NoError(t, err)
		_, err = time.Parse(time.RFC3339, resp.Timestamp)
		assert.NoError(t, err)
		assert.Contains(t, prompt, `Metadata: {"page":5,"source":"ICH-GCP"}`)
		assert.Contains(t, prompt, "ID: gcp_guidelines-0")
	})

	t.Run("Should return the fallback when the model fails", func(t *testing.T) {
		failing := llm.Func(func(context.Context, string) (string, error) {
			return "", errors.New("service unavailable")
		})
		gen, err := rag.NewGenerator(failing)
		require.NoError(t, err)
		conv, err := rag.NewConversation(newGCPRetriever(t, failing), gen, rag.Settings{})
		require.NoError(t, err)

		resp, err := conv.Answer(t.Context(), rag.Request{Message: "what is GCP?"})
		require.NoError(t, err)
		assert.Equal(t, rag.DefaultFallbackMessage, resp.Content)
		assert.NotNil(t, resp.Citations)
		assert.Empty(t, resp.Citations)
	})

	t.Run("Should use a configured fallback message", func(t *testing.T) {
		conv, err := rag.NewConversation(&stubRetriever{}, &stubGenerator{}, rag.Settings{FallbackMessage: "Try later"})
		require.NoError(t, err)
		resp, err := conv.Answer(t.Context(), rag.Request{Message: "q"})
		require.NoError(t, err)
		assert.Equal(t, "Try later", resp.Content)
	})

	t.Run("Should reject blank messages", func(t *testing.T) {
		conv, err := rag.NewConversation(&stubRetriever{}, &stubGenerator{text: "x"}, rag.Settings{})
		require.NoError(t, err)
		_, err = conv.Answer(t.Context(), rag.Request{Message: " \n\t"})
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeValidation))
	})

	t.Run("Should surface retrieval failures", func(t *testing.T) {
		ret := &stubRetriever{err: core.NewError(errors.New("index down"), core.ErrCodeIndex, nil)}
		conv, err := rag.NewConversation(ret, &stubGenerator{text: "x"}, rag.Settings{})
		require.NoError(t, err)
		_, err = conv.Answer(t.Context(), rag.Request{Message: "q"})
		require.Error(t, err)
		assert.True(t, core.IsCode(err, core.ErrCodeIndex))
	})

	t.Run("Should pass history through without using it", func(t *testing.T) {
		ret := &stubRetriever{chunks: []knowledge.RetrievedChunk{{ID: "a", Text: "alpha"}}}
		gen := &stubGenerator{text: "answer"}
		conv, err := rag.NewConversation(ret, gen, rag.Settings{K: 3})
		require.NoError(t, err)
		history := []rag.Message{{Role: rag.RoleUser, Content: "earlier"}}
		resp, err := conv.Answer(t.Context(), rag.Request{Message: "q", Model: "gpt-4o-mini", History: history})
		require.NoError(t, err)
		assert.Equal(t, "answer", resp.Content)
		assert.Equal(t, 3, ret.k)
		assert.Equal(t, "Content: alpha\nMetadata: {}\nID: a\n", gen.context)
		assert.Equal(t, []rag.Message{{Role: rag.RoleUser, Content: "earlier"}}, history)
	})

	t.Run("Should stop when the caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		conv, err := rag.NewConversation(&stubRetriever{}, &stubGenerator{text: "x"}, rag.Settings{})
		require.NoError(t, err)
		_, err = conv.Answer(ctx, rag.Request{Message: "q"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
