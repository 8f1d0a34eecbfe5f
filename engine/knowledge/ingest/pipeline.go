package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge"
	"github.com/gcpassist/gcpassist/engine/knowledge/chunk"
	"github.com/gcpassist/gcpassist/engine/knowledge/embedder"
	"github.com/gcpassist/gcpassist/engine/knowledge/loader"
	"github.com/gcpassist/gcpassist/engine/knowledge/vectordb"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// Pipeline turns one source document into embedded, namespaced index records.
type Pipeline struct {
	loader   loader.Loader
	chunker  *chunk.Processor
	embedder embedder.Embedder
	store    vectordb.Store
	options  Options
}

func NewPipeline(
	ld loader.Loader,
	chunker *chunk.Processor,
	emb embedder.Embedder,
	store vectordb.Store,
	opts Options,
) (*Pipeline, error) {
	if ld == nil {
		return nil, errors.New("ingest: document loader is required")
	}
	if chunker == nil {
		return nil, errors.New("ingest: chunker is required")
	}
	if emb == nil {
		return nil, errors.New("ingest: embedder implementation is required")
	}
	if store == nil {
		return nil, errors.New("ingest: vector store is required")
	}
	return &Pipeline{
		loader:   ld,
		chunker:  chunker,
		embedder: emb,
		store:    store,
		options:  opts.normalized(),
	}, nil
}

// ChunkID is the deterministic record id for the index-th chunk of a namespace.
func ChunkID(namespace string, index int) string {
	return fmt.Sprintf("%s-%d", namespace, index)
}

// Ingest loads, chunks, embeds and upserts a single document, returning the
// number of chunks written. Every chunk is embedded before the first upsert so
// an embedding failure leaves the index untouched for this document.
func (p *Pipeline) Ingest(ctx context.Context, path string, namespace string) (int, error) {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		return 0, core.NewError(errors.New("namespace is required"), core.ErrCodeValidation, map[string]any{"path": path})
	}
	log := logger.FromContext(ctx).With("path", path, "namespace", namespace)
	start := time.Now()
	count, err := p.ingest(ctx, path, namespace)
	knowledge.RecordIngestDuration(ctx, namespace, time.Since(start))
	if err != nil {
		knowledge.RecordIngestFailure(ctx, namespace, core.ErrorCode(err))
		log.Error("Document ingestion failed", "error", err)
		return 0, err
	}
	knowledge.RecordIngestChunks(ctx, namespace, count)
	log.Info("Document ingested", "chunks", count, "duration", time.Since(start))
	return count, nil
}

func (p *Pipeline) ingest(ctx context.Context, path string, namespace string) (int, error) {
	doc, err := p.loader.Load(ctx, path)
	if err != nil {
		return 0, err
	}
	chunks, err := p.chunker.Process(chunk.Document{Source: doc.Name, Text: doc.Text})
	if err != nil {
		return 0, core.NewError(err, core.ErrCodeDocumentLoad, map[string]any{"path": path})
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	vectors, err := p.embedAll(ctx, chunks)
	if err != nil {
		return 0, err
	}
	records := buildRecords(namespace, chunks, vectors)
	if err := p.upsertAll(ctx, namespace, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (p *Pipeline) embedAll(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.options.BatchSize {
		end := min(start+p.options.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			texts = append(texts, chunks[i].Text)
		}
		var batch [][]float32
		err := p.withRetry(ctx, func(ctx context.Context) error {
			out, err := p.embedder.EmbedDocuments(ctx, texts)
			if err != nil {
				return err
			}
			batch = out
			return nil
		})
		if err != nil {
			return nil, ensureCode(err, core.ErrCodeEmbedding)
		}
		if len(batch) != len(texts) {
			return nil, core.NewError(
				fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), len(texts)),
				core.ErrCodeEmbedding,
				nil,
			)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// upsertAll writes batches in chunk order.
func (p *Pipeline) upsertAll(ctx context.Context, namespace string, records []vectordb.Record) error {
	for start := 0; start < len(records); start += p.options.BatchSize {
		end := min(start+p.options.BatchSize, len(records))
		batch := records[start:end]
		err := p.withRetry(ctx, func(ctx context.Context) error {
			return p.store.Upsert(ctx, namespace, batch)
		})
		if err != nil {
			return ensureCode(err, core.ErrCodeIndex)
		}
	}
	return nil
}

func (p *Pipeline) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(p.options.RetryAttempts), retry.NewExponential(p.options.RetryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

func buildRecords(namespace string, chunks []chunk.Chunk, vectors [][]float32) []vectordb.Record {
	records := make([]vectordb.Record, len(chunks))
	for i := range chunks {
		records[i] = vectordb.Record{
			ID:        ChunkID(namespace, chunks[i].Index),
			Text:      chunks[i].Text,
			Embedding: vectors[i],
			Metadata: map[string]any{
				knowledge.MetadataText:       chunks[i].Text,
				knowledge.MetadataSource:     chunks[i].Source,
				knowledge.MetadataNamespace:  namespace,
				knowledge.MetadataChunkIndex: chunks[i].Index,
			},
		}
	}
	return records
}

func ensureCode(err error, code string) error {
	var coded *core.Error
	if errors.As(err, &coded) {
		return err
	}
	return core.NewError(err, code, nil)
}
