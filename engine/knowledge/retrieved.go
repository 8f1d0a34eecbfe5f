package knowledge

// Metadata keys written for every indexed chunk.
const (
	MetadataText       = "text"
	MetadataSource     = "source"
	MetadataNamespace  = "namespace"
	MetadataChunkIndex = "chunk_index"
)

// RetrievedChunk is a read-only copy of an indexed chunk returned for a query.
type RetrievedChunk struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]any
}
