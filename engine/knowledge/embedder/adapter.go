package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Adapter wraps a langchaingo embedder, enforces dimensionality and maps
// every failure to an EMBEDDING_ERROR.
type Adapter struct {
	provider  Provider
	model     string
	dimension int
	batchSize int
	timeout   time.Duration
	impl      embeddings.Embedder
	cacheMu   sync.Mutex
	cache     *lru.Cache[string, []float32]
}

var (
	errMissingProvider  = errors.New("embedder provider is required")
	errMissingModel     = errors.New("embedder model is required")
	errInvalidDimension = errors.New("embedder dimension must be greater than zero")
	errInvalidBatchSize = errors.New("embedder batch size must be greater than zero")
)

// New constructs a provider-backed embedder adapter.
func New(cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	impl, err := buildProviderEmbedder(cfg,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(cfg.StripNewLines),
	)
	if err != nil {
		return nil, err
	}
	return Wrap(cfg, impl)
}

// Wrap constructs an adapter around an existing langchaingo embedder.
func Wrap(cfg *Config, impl embeddings.Embedder) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("embedder config is required")
	}
	if impl == nil {
		return nil, errors.New("embedder implementation is required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	a := &Adapter{
		provider:  cfg.Provider,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		impl:      impl,
	}
	if cfg.CacheSize > 0 {
		if err := a.EnableCache(cfg.CacheSize); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Dimension returns the configured vector dimension.
func (a *Adapter) Dimension() int {
	return a.dimension
}

// BatchSize returns the configured batch size.
func (a *Adapter) BatchSize() int {
	return a.batchSize
}

// EnableCache initializes an LRU cache for embeddings.
func (a *Adapter) EnableCache(size int) error {
	if size <= 0 {
		return errors.New("embedder cache size must be greater than zero")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return fmt.Errorf("embedder: init cache: %w", err)
	}
	a.cacheMu.Lock()
	a.cache = cache
	a.cacheMu.Unlock()
	return nil
}

// EmbedDocuments embeds texts in order, serving repeats from the cache.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	missing := make(map[string][]int)
	order := make([]string, 0, len(texts))
	for i, text := range texts {
		if vector, ok := a.lookupCache(text); ok {
			recordCache(ctx, a.provider, true)
			results[i] = vector
			continue
		}
		if a.getCache() != nil {
			recordCache(ctx, a.provider, false)
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}
	if len(order) == 0 {
		return results, nil
	}
	callCtx, cancel := a.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	embedded, err := a.impl.EmbedDocuments(callCtx, order)
	if err != nil {
		recordEmbedding(ctx, a.provider, a.model, len(order), time.Since(start), "error")
		return nil, a.fail(err, len(order))
	}
	if len(embedded) != len(order) {
		return nil, a.fail(fmt.Errorf("received %d embeddings for %d texts", len(embedded), len(order)), len(order))
	}
	for i, vector := range embedded {
		if err := a.checkDimension(vector); err != nil {
			return nil, a.fail(err, len(order))
		}
		for _, idx := range missing[order[i]] {
			results[idx] = cloneVector(vector)
		}
		a.storeCache(order[i], vector)
	}
	recordEmbedding(ctx, a.provider, a.model, len(order), time.Since(start), "success")
	return results, nil
}

// EmbedQuery embeds a single search string.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := a.lookupCache(text); ok {
		recordCache(ctx, a.provider, true)
		return vector, nil
	}
	if a.getCache() != nil {
		recordCache(ctx, a.provider, false)
	}
	callCtx, cancel := a.withTimeout(ctx)
	defer cancel()
	start := time.Now()
	vector, err := a.impl.EmbedQuery(callCtx, text)
	if err != nil {
		recordEmbedding(ctx, a.provider, a.model, 1, time.Since(start), "error")
		return nil, a.fail(err, 1)
	}
	if err := a.checkDimension(vector); err != nil {
		return nil, a.fail(err, 1)
	}
	recordEmbedding(ctx, a.provider, a.model, 1, time.Since(start), "success")
	a.storeCache(text, vector)
	return cloneVector(vector), nil
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *Adapter) checkDimension(vector []float32) error {
	if len(vector) != a.dimension {
		return fmt.Errorf("expected %d dimensions, received %d", a.dimension, len(vector))
	}
	return nil
}

func (a *Adapter) fail(err error, count int) error {
	return core.NewError(err, core.ErrCodeEmbedding, map[string]any{
		"provider": string(a.provider),
		"model":    a.model,
		"texts":    count,
	})
}

func (a *Adapter) getCache() *lru.Cache[string, []float32] {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	return a.cache
}

func (a *Adapter) lookupCache(text string) ([]float32, bool) {
	cache := a.getCache()
	if cache == nil {
		return nil, false
	}
	value, ok := cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	return cloneVector(value), true
}

func (a *Adapter) storeCache(text string, vector []float32) {
	cache := a.getCache()
	if cache == nil || len(vector) == 0 {
		return
	}
	cache.Add(cacheKey(text), cloneVector(vector))
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(string(cfg.Provider)) == "" {
		return errMissingProvider
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return errMissingModel
	}
	if cfg.Dimension <= 0 {
		return errInvalidDimension
	}
	if cfg.BatchSize <= 0 {
		return errInvalidBatchSize
	}
	return nil
}

func buildProviderEmbedder(cfg *Config, opts ...embeddings.Option) (embeddings.Embedder, error) {
	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		client, err = newOpenAIClient(cfg)
	case ProviderOllama:
		client, err = newOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("embedder provider %q is not supported", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to initialize %s client: %w", cfg.Provider, err)
	}
	embedder, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder: failed to construct %s embedder: %w", cfg.Provider, err)
	}
	return embedder, nil
}

func newOpenAIClient(cfg *Config) (embeddings.EmbedderClient, error) {
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func newOllamaClient(cfg *Config) (embeddings.EmbedderClient, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	logger.GetDefault().Debug("Using ollama embeddings", "model", cfg.Model, "server", cfg.BaseURL)
	return client, nil
}
