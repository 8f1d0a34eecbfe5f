package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gcpassist/gcpassist/engine/knowledge"
)

func TestAssemble(t *testing.T) {
	t.Run("Should render labeled blocks in retrieval order", func(t *testing.T) {
		out := Assemble([]knowledge.RetrievedChunk{
			{ID: "gcp-0", Text: "Informed consent", Metadata: map[string]any{"source": "ICH-GCP", "page": 5}},
			{Text: "Monitoring & audits", Metadata: map[string]any{"source": "<E6>"}},
		})
		want := "Content: Informed consent\nMetadata: {\"page\":5,\"source\":\"ICH-GCP\"}\nID: gcp-0\n" +
			"\n---\n" +
			"Content: Monitoring & audits\nMetadata: {\"source\":\"<E6>\"}\nID: N/A\n"
		assert.Equal(t, want, out)
	})

	t.Run("Should render nil metadata as an empty object", func(t *testing.T) {
		assert.Equal(t, "Content: x\nMetadata: {}\nID: a\n", Assemble([]knowledge.RetrievedChunk{{ID: "a", Text: "x"}}))
	})

	t.Run("Should return an empty context for no chunks", func(t *testing.T) {
		assert.Empty(t, Assemble(nil))
	})
}
