package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcpassist/gcpassist/engine/llm"
)

func TestGenerator_Generate(t *testing.T) {
	t.Run("Should fill the template and return the model text", func(t *testing.T) {
		var prompt string
		gen, err := NewGenerator(llm.Func(func(_ context.Context, p string) (string, error) {
			prompt = p
			return "  GCP is a quality standard [ICH-GCP, p.5]\n", nil
		}))
		require.NoError(t, err)
		out := gen.Generate(t.Context(), "what is GCP?", "Content: GCP\nMetadata: {}\nID: a\n")
		assert.Equal(t, "GCP is a quality standard [ICH-GCP, p.5]", out)
		assert.Contains(t, prompt, "Answer the question based only on the following context.")
		assert.Contains(t, prompt, `"I don't have enough information to answer this question"`)
		assert.Contains(t, prompt, "suggest sample questions")
		assert.Contains(t, prompt, "Context:\nContent: GCP\nMetadata: {}\nID: a\n")
		assert.Contains(t, prompt, "Question: what is GCP?\n\nAnswer:")
	})

	t.Run("Should return an empty string when the model fails", func(t *testing.T) {
		gen, err := NewGenerator(llm.Func(func(context.Context, string) (string, error) {
			return "", errors.New("content policy violation")
		}))
		require.NoError(t, err)
		assert.Empty(t, gen.Generate(t.Context(), "q", "c"))
	})

	t.Run("Should keep template markers in the question literal", func(t *testing.T) {
		var prompt string
		gen, err := NewGenerator(llm.Func(func(_ context.Context, p string) (string, error) {
			prompt = p
			return "ok", nil
		}))
		require.NoError(t, err)
		gen.Generate(t.Context(), "what is {{ .Context }}?", "ctx")
		assert.Contains(t, prompt, "Question: what is {{ .Context }}?")
	})

	t.Run("Should require a client", func(t *testing.T) {
		_, err := NewGenerator(nil)
		assert.Error(t, err)
	})
}
