package vectordb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

const (
	pineconeAPIVersion     = "2024-07"
	pineconeUpsertBatch    = 100
	pineconeDefaultTimeout = 10 * time.Second
	pineconeTextKey        = "text"
)

type pineconeStore struct {
	client    *resty.Client
	index     string
	dimension int
}

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Values   []float32      `json:"values"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type pineconeError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

func newPineconeStore(cfg *Config) (*pineconeStore, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, fmt.Errorf("pinecone: index host is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = pineconeDefaultTimeout
	}
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetHeader("Api-Key", cfg.APIKey).
		SetHeader("X-Pinecone-API-Version", pineconeAPIVersion).
		SetHeader("Content-Type", "application/json")
	return &pineconeStore{client: client, index: cfg.Index, dimension: cfg.Dimension}, nil
}

func (p *pineconeStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]pineconeVector, 0, len(records))
	for i := range records {
		rec := records[i]
		if err := checkDimension("pinecone", rec.ID, len(rec.Embedding), p.dimension); err != nil {
			return err
		}
		metadata := core.CloneMap(rec.Metadata)
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata[pineconeTextKey] = rec.Text
		vectors = append(vectors, pineconeVector{ID: rec.ID, Values: rec.Embedding, Metadata: metadata})
	}
	for start := 0; start < len(vectors); start += pineconeUpsertBatch {
		end := min(start+pineconeUpsertBatch, len(vectors))
		body := map[string]any{"vectors": vectors[start:end], "namespace": namespace}
		if err := p.post(ctx, "/vectors/upsert", body, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *pineconeStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != p.dimension {
		return nil, fmt.Errorf("pinecone: query dimension mismatch (got %d want %d)", len(query), p.dimension)
	}
	body := map[string]any{
		"vector":          query,
		"topK":            resolveTopK(opts.TopK),
		"namespace":       opts.Namespace,
		"includeMetadata": true,
		"includeValues":   opts.IncludeVectors,
	}
	if opts.Filter != nil {
		compiled, err := buildPineconeFilter(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFilter, err)
		}
		body["filter"] = compiled
	}
	var response pineconeQueryResponse
	if err := p.post(ctx, "/query", body, &response); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(response.Matches))
	for _, m := range response.Matches {
		if opts.MinScore > 0 && m.Score < opts.MinScore {
			continue
		}
		metadata := m.Metadata
		if metadata == nil {
			metadata = make(map[string]any)
		}
		text, _ := metadata[pineconeTextKey].(string)
		match := Match{ID: m.ID, Score: m.Score, Text: text, Metadata: metadata}
		if opts.IncludeVectors {
			match.Embedding = m.Values
		}
		matches = append(matches, match)
	}
	SortMatches(matches)
	return matches, nil
}

func (p *pineconeStore) Close(context.Context) error {
	return nil
}

func (p *pineconeStore) post(ctx context.Context, path string, body any, out any) error {
	var apiErr pineconeError
	req := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&apiErr)
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(path)
	if err != nil {
		return fmt.Errorf("pinecone: %s request failed: %w", path, err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("pinecone: %s (%d): %s", path, resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("pinecone: %s failed with status %d", path, resp.StatusCode())
	}
	return nil
}

// buildPineconeFilter translates an expression into Pinecone's metadata
// filter language. The language has no $not, and flipping comparators under a
// negation changes which records lacking the attribute match, so negations
// are rejected.
func buildPineconeFilter(expr filter.Expression) (map[string]any, error) {
	switch e := expr.(type) {
	case *filter.Comparison:
		return pineconeComparison(e)
	case *filter.Operation:
		switch e.Operator {
		case filter.And, filter.Or:
			args := make([]any, 0, len(e.Arguments))
			for _, arg := range e.Arguments {
				node, err := buildPineconeFilter(arg)
				if err != nil {
					return nil, err
				}
				args = append(args, node)
			}
			return map[string]any{"$" + string(e.Operator): args}, nil
		case filter.Not:
			return nil, fmt.Errorf("pinecone: negation is not supported")
		default:
			return nil, fmt.Errorf("pinecone: unsupported operator %q", e.Operator)
		}
	default:
		return nil, fmt.Errorf("pinecone: unsupported filter %T", expr)
	}
}

func pineconeComparison(c *filter.Comparison) (map[string]any, error) {
	if !c.Comparator.Valid() {
		return nil, fmt.Errorf("pinecone: unsupported comparator %q", c.Comparator)
	}
	value := c.Value
	if c.Comparator == filter.In || c.Comparator == filter.Nin {
		if list, ok := filter.ListValue(value); ok {
			value = list
		} else {
			value = []any{value}
		}
	}
	return map[string]any{c.Attribute: map[string]any{"$" + string(c.Comparator): value}}, nil
}
