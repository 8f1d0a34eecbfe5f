package retriever

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge"
	"github.com/gcpassist/gcpassist/engine/knowledge/embedder"
	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
	"github.com/gcpassist/gcpassist/engine/knowledge/vectordb"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// Translator structures a question before search. Implementations must not
// fail; see selfquery.Translator.
type Translator interface {
	Translate(ctx context.Context, question string) knowledge.StructuredQuery
}

type passthrough struct{}

func (passthrough) Translate(_ context.Context, question string) knowledge.StructuredQuery {
	return knowledge.StructuredQuery{Query: question}
}

// Service fetches the chunks most relevant to a question.
type Service struct {
	translator Translator
	embedder   embedder.Embedder
	store      vectordb.Store
	options    Options
	tracer     trace.Tracer
}

func NewService(
	translator Translator,
	emb embedder.Embedder,
	store vectordb.Store,
	opts Options,
) (*Service, error) {
	if emb == nil {
		return nil, errors.New("retriever: embedder is required")
	}
	if store == nil {
		return nil, errors.New("retriever: vector store is required")
	}
	opts = opts.normalized()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if translator == nil {
		translator = passthrough{}
	}
	return &Service{
		translator: translator,
		embedder:   emb,
		store:      store,
		options:    opts,
		tracer:     otel.Tracer("gcpassist.knowledge.retriever"),
	}, nil
}

// Options returns the effective retrieval settings.
func (s *Service) Options() Options {
	return s.options
}

// Retrieve returns at most k chunks ordered by descending score, ties broken
// by ascending id. A non-positive k uses the configured top k.
func (s *Service) Retrieve(ctx context.Context, question string, k int) (chunks []knowledge.RetrievedChunk, err error) {
	if strings.TrimSpace(question) == "" {
		return nil, core.NewError(errors.New("question is required"), core.ErrCodeValidation, nil)
	}
	if k <= 0 {
		k = s.options.TopK
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "gcpassist.knowledge.retriever.retrieve", trace.WithAttributes(
		attribute.String("namespace", s.options.Namespace),
		attribute.String("mode", string(s.options.Mode)),
		attribute.Int("k", k),
	))
	defer s.finishRetrieve(ctx, span, start, &chunks, &err)

	query := s.translator.Translate(ctx, question)
	if strings.TrimSpace(query.Query) == "" {
		query.Query = question
	}
	vector, err := s.embedQuery(ctx, query.Query)
	if err != nil {
		return nil, err
	}
	matches, err := s.search(ctx, vector, query, k)
	if err != nil {
		if core.ErrorCode(err) == "" {
			err = core.NewError(err, core.ErrCodeIndex, map[string]any{"namespace": s.options.Namespace})
		}
		return nil, err
	}
	vectordb.SortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return toChunks(matches), nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	spanCtx, span := s.tracer.Start(ctx, "gcpassist.knowledge.retriever.embed_query")
	defer span.End()
	vector, err := s.embedder.EmbedQuery(spanCtx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if core.ErrorCode(err) == "" {
			err = core.NewError(err, core.ErrCodeEmbedding, nil)
		}
		return nil, err
	}
	return vector, nil
}

func (s *Service) search(
	ctx context.Context,
	vector []float32,
	query knowledge.StructuredQuery,
	k int,
) ([]vectordb.Match, error) {
	spanCtx, span := s.tracer.Start(ctx, "gcpassist.knowledge.retriever.vector_search", trace.WithAttributes(
		attribute.Bool("filtered", query.HasFilter()),
	))
	defer span.End()
	matches, err := s.searchWith(spanCtx, vector, query.Filter, k)
	if err != nil && query.HasFilter() && errors.Is(err, vectordb.ErrUnsupportedFilter) {
		// Without the filter the results are a superset of the filtered ones.
		logger.FromContext(ctx).Warn(
			"Vector store rejected filter; searching without it",
			"namespace", s.options.Namespace,
			"filter", query.Filter,
			"error", err,
		)
		knowledge.RecordFilterFallback(ctx, s.options.Namespace)
		span.SetAttributes(attribute.Bool("filter_dropped", true))
		matches, err = s.searchWith(spanCtx, vector, nil, k)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))
	return matches, nil
}

func (s *Service) searchWith(
	ctx context.Context,
	vector []float32,
	expr filter.Expression,
	k int,
) ([]vectordb.Match, error) {
	if s.options.Mode == ModeMMR {
		return vectordb.MMRSearch(ctx, s.store, vector, vectordb.MMROptions{
			Namespace: s.options.Namespace,
			K:         k,
			FetchK:    max(s.options.FetchK, k),
			Lambda:    s.options.Lambda,
			Filter:    expr,
		})
	}
	return s.store.Search(ctx, vector, vectordb.SearchOptions{
		Namespace: s.options.Namespace,
		TopK:      k,
		Filter:    expr,
	})
}

func (s *Service) finishRetrieve(
	ctx context.Context,
	span trace.Span,
	start time.Time,
	chunks *[]knowledge.RetrievedChunk,
	runErr *error,
) {
	duration := time.Since(start)
	knowledge.RecordQueryLatency(ctx, s.options.Namespace, string(s.options.Mode), duration)
	log := logger.FromContext(ctx).With("namespace", s.options.Namespace, "mode", s.options.Mode)
	if runErr != nil && *runErr != nil {
		err := *runErr
		log.Error("Retrieval failed", "error", err, "duration", duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return
	}
	total := len(*chunks)
	if total == 0 {
		knowledge.RecordRetrievalEmpty(ctx, s.options.Namespace)
	}
	log.Debug("Retrieval finished", "results", total, "duration", duration)
	span.SetAttributes(attribute.Int("results", total))
	span.End()
}

func toChunks(matches []vectordb.Match) []knowledge.RetrievedChunk {
	out := make([]knowledge.RetrievedChunk, len(matches))
	for i := range matches {
		out[i] = knowledge.RetrievedChunk{
			ID:       matches[i].ID,
			Text:     matches[i].Text,
			Score:    matches[i].Score,
			Metadata: core.CloneMap(matches[i].Metadata),
		}
	}
	return out
}
