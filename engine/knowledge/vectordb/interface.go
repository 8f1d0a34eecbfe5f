package vectordb

import (
	"context"
	"errors"
	"time"

	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
	appconfig "github.com/gcpassist/gcpassist/pkg/config"
)

// Provider enumerates supported vector database backends.
type Provider string

const (
	ProviderMemory   Provider = "memory"
	ProviderPGVector Provider = "pgvector"
	ProviderQdrant   Provider = "qdrant"
	ProviderRedis    Provider = "redis"
	ProviderPinecone Provider = "pinecone"
	// ProviderFilesystem persists embeddings to a local JSON snapshot.
	ProviderFilesystem Provider = "filesystem"
)

const defaultTopK = 4

// Record represents a chunk persisted to the vector store.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// SearchOptions controls similarity search execution.
type SearchOptions struct {
	Namespace string
	TopK      int
	// Filter restricts candidates by metadata. Nil matches every record.
	Filter filter.Expression
	// IncludeVectors asks the backend to return stored embeddings with each match.
	IncludeVectors bool
	MinScore       float64
}

// Match captures a similarity search result.
type Match struct {
	ID        string
	Score     float64
	Text      string
	Metadata  map[string]any
	Embedding []float32
}

// ErrUnsupportedFilter reports a metadata filter the backend cannot express.
// Callers may retry the search without the filter.
var ErrUnsupportedFilter = errors.New("filter not supported by backend")

// Store exposes the minimal contract for ingestion and retrieval.
//
// Upsert replaces records with the same id inside the namespace. Search
// returns at most TopK matches ordered by descending score, ties broken by
// ascending id.
type Store interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error)
	Close(ctx context.Context) error
}

// Config captures normalized connection details for a vector database.
type Config struct {
	Provider     Provider
	DSN          string
	Path         string
	Table        string
	Collection   string
	Index        string
	Host         string
	APIKey       string
	Metric       string
	Dimension    int
	EnsureSchema bool
	Timeout      time.Duration
	MaxTopK      int
}

// ConfigFromApp maps application settings onto a store Config. The dimension
// comes from the embedder since both must agree.
func ConfigFromApp(cfg *appconfig.VectorDBConfig, dimension int) *Config {
	if cfg == nil {
		return nil
	}
	return &Config{
		Provider:     Provider(cfg.Provider),
		DSN:          cfg.DSN.Value(),
		Path:         cfg.Path,
		Table:        cfg.Table,
		Collection:   cfg.Collection,
		Index:        cfg.Index,
		Host:         cfg.Host,
		APIKey:       cfg.APIKey.Value(),
		Metric:       cfg.Metric,
		Dimension:    dimension,
		EnsureSchema: cfg.EnsureSchema,
		Timeout:      cfg.Timeout,
	}
}
