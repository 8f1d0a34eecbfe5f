package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gcpassist/gcpassist/engine/core"
)

var (
	errMissingProvider  = errors.New("vector_db provider is required")
	errMissingDSN       = errors.New("vector_db dsn is required")
	errMissingPath      = errors.New("vector_db path is required")
	errMissingHost      = errors.New("vector_db host is required")
	errInvalidDimension = errors.New("vector_db dimension must be greater than zero")
)

// New instantiates a vector store backed by the requested provider. Every
// failure surfaced by the returned store carries the INDEX_ERROR code.
func New(ctx context.Context, cfg *Config) (Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, core.NewError(err, core.ErrCodeIndex, map[string]any{"provider": providerOf(cfg)})
	}
	store, err := instantiateStore(ctx, cfg)
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeIndex, map[string]any{"provider": string(cfg.Provider)})
	}
	return Instrument(store, string(cfg.Provider)), nil
}

func providerOf(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	return string(cfg.Provider)
}

func instantiateStore(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Provider {
	case ProviderMemory:
		return newMemoryStore(cfg), nil
	case ProviderFilesystem:
		return newFileStore(cfg)
	case ProviderPGVector:
		return newPGStore(ctx, cfg)
	case ProviderQdrant:
		return newQdrantStore(ctx, cfg)
	case ProviderRedis:
		return newRedisStore(ctx, cfg)
	case ProviderPinecone:
		return newPineconeStore(cfg)
	default:
		return nil, fmt.Errorf("vector_db provider %q is not supported", cfg.Provider)
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("vector_db config is required")
	}
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return errMissingProvider
	}
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Path = strings.TrimSpace(cfg.Path)
	switch cfg.Provider {
	case ProviderPGVector, ProviderQdrant, ProviderRedis:
		if cfg.DSN == "" {
			return fmt.Errorf("%s: %w", cfg.Provider, errMissingDSN)
		}
	case ProviderFilesystem:
		if cfg.Path == "" {
			return fmt.Errorf("%s: %w", cfg.Provider, errMissingPath)
		}
	case ProviderPinecone:
		if strings.TrimSpace(cfg.Host) == "" {
			return fmt.Errorf("%s: %w", cfg.Provider, errMissingHost)
		}
	}
	if cfg.Dimension <= 0 {
		return errInvalidDimension
	}
	if cfg.MaxTopK < 0 {
		return errors.New("vector_db max_top_k must be non-negative")
	}
	return nil
}

// instrumentedStore records latency and errors and tags failures with INDEX_ERROR.
type instrumentedStore struct {
	Store
	provider string
}

// Instrument wraps store with metrics and error classification.
func Instrument(store Store, provider string) Store {
	if _, ok := store.(*instrumentedStore); ok {
		return store
	}
	return &instrumentedStore{Store: store, provider: provider}
}

func (s *instrumentedStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	start := time.Now()
	err := s.Store.Upsert(ctx, namespace, records)
	recordVectorUpsert(ctx, s.provider, len(records), time.Since(start))
	if err != nil {
		recordVectorError(ctx, s.provider, "upsert")
		return s.wrap(err, namespace)
	}
	return nil
}

func (s *instrumentedStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	start := time.Now()
	matches, err := s.Store.Search(ctx, query, opts)
	if err != nil {
		recordVectorError(ctx, s.provider, "search")
		return nil, s.wrap(err, opts.Namespace)
	}
	recordVectorSearch(ctx, s.provider, opts.TopK, time.Since(start), len(matches))
	return truncate(matches, resolveTopK(opts.TopK)), nil
}

func (s *instrumentedStore) wrap(err error, namespace string) error {
	if core.IsCode(err, core.ErrCodeIndex) {
		return err
	}
	return core.NewError(err, core.ErrCodeIndex, map[string]any{
		"provider":  s.provider,
		"namespace": namespace,
	})
}
