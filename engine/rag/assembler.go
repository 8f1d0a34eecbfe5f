package rag

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gcpassist/gcpassist/engine/knowledge"
)

// ChunkSeparator joins rendered chunks in an assembled context.
const ChunkSeparator = "\n---\n"

const missingID = "N/A"

// Assemble renders chunks as labeled blocks in retrieval order. It never
// truncates; callers bound the size through k.
func Assemble(chunks []knowledge.RetrievedChunk) string {
	blocks := make([]string, len(chunks))
	for i := range chunks {
		blocks[i] = renderChunk(&chunks[i])
	}
	return strings.Join(blocks, ChunkSeparator)
}

func renderChunk(chunk *knowledge.RetrievedChunk) string {
	id := chunk.ID
	if id == "" {
		id = missingID
	}
	var b strings.Builder
	b.WriteString("Content: ")
	b.WriteString(chunk.Text)
	b.WriteString("\nMetadata: ")
	b.WriteString(metadataJSON(chunk.Metadata))
	b.WriteString("\nID: ")
	b.WriteString(id)
	b.WriteString("\n")
	return b.String()
}

func metadataJSON(metadata map[string]any) string {
	if metadata == nil {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(metadata); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
