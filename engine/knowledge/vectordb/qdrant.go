package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

type qdrantStore struct {
	client     *http.Client
	baseURL    string
	collection string
	dimension  int
	metric     string
	apiKey     string
}

// qdrantSearchResult captures the fields returned by Qdrant search responses.
type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

const (
	qdrantDefaultTimeout = 10 * time.Second
	qdrantTextKey        = "text"
	qdrantChunkIDKey     = "_chunk_id"
	qdrantNamespaceKey   = "_namespace"
)

func newQdrantStore(ctx context.Context, cfg *Config) (*qdrantStore, error) {
	base := strings.TrimRight(cfg.DSN, "/")
	if base == "" {
		return nil, fmt.Errorf("qdrant: dsn is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = cfg.Table
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = qdrantDefaultTimeout
	}
	store := &qdrantStore{
		client:     &http.Client{Timeout: timeout},
		baseURL:    base,
		collection: url.PathEscape(collection),
		dimension:  cfg.Dimension,
		metric:     chooseQdrantMetric(cfg.Metric),
		apiKey:     cfg.APIKey,
	}
	if cfg.EnsureSchema {
		if err := store.ensureCollection(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func chooseQdrantMetric(metric string) string {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "euclid", "euclidean", "l2":
		return "Euclid"
	case "dot", "dotproduct":
		return "Dot"
	default:
		return "Cosine"
	}
}

// qdrantPointID derives a stable UUID since Qdrant only accepts UUIDs or integers as point ids.
func qdrantPointID(namespace, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+id)).String()
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", q.collection)
	if err := q.doRequest(ctx, http.MethodGet, path, nil, nil); err == nil {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": q.metric,
		},
	}
	return q.doRequest(ctx, http.MethodPut, path, body, nil)
}

func (q *qdrantStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]any, 0, len(records))
	for i := range records {
		rec := records[i]
		if err := checkDimension("qdrant", rec.ID, len(rec.Embedding), q.dimension); err != nil {
			return err
		}
		payload := core.CloneMap(rec.Metadata)
		if payload == nil {
			payload = make(map[string]any)
		}
		payload[qdrantTextKey] = rec.Text
		payload[qdrantChunkIDKey] = rec.ID
		payload[qdrantNamespaceKey] = namespace
		points = append(points, map[string]any{
			"id":      qdrantPointID(namespace, rec.ID),
			"vector":  rec.Embedding,
			"payload": payload,
		})
	}
	body := map[string]any{"points": points}
	return q.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collection), body, nil)
}

func (q *qdrantStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != q.dimension {
		return nil, fmt.Errorf("qdrant: query dimension mismatch (got %d want %d)", len(query), q.dimension)
	}
	must := []any{qdrantMatch(qdrantNamespaceKey, opts.Namespace)}
	if opts.Filter != nil {
		cond, err := buildQdrantCondition(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFilter, err)
		}
		must = append(must, cond)
	}
	request := map[string]any{
		"vector":       query,
		"limit":        resolveTopK(opts.TopK),
		"with_payload": true,
		"with_vector":  opts.IncludeVectors,
		"filter":       map[string]any{"must": must},
	}
	var response struct {
		Result []qdrantSearchResult `json:"result"`
	}
	searchPath := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.doRequest(ctx, http.MethodPost, searchPath, request, &response); err != nil {
		return nil, err
	}
	matches := mapQdrantResults(response.Result, opts)
	SortMatches(matches)
	return matches, nil
}

func (q *qdrantStore) Close(context.Context) error {
	q.client.CloseIdleConnections()
	return nil
}

// mapQdrantResults converts Qdrant search results into the internal Match slice.
func mapQdrantResults(results []qdrantSearchResult, opts SearchOptions) []Match {
	matches := make([]Match, 0, len(results))
	for _, res := range results {
		if opts.MinScore > 0 && res.Score < opts.MinScore {
			continue
		}
		payload := core.CloneMap(res.Payload)
		if payload == nil {
			payload = make(map[string]any)
		}
		id := fmt.Sprint(res.ID)
		if raw, ok := payload[qdrantChunkIDKey].(string); ok {
			id = raw
		}
		text, _ := payload[qdrantTextKey].(string)
		delete(payload, qdrantTextKey)
		delete(payload, qdrantChunkIDKey)
		delete(payload, qdrantNamespaceKey)
		match := Match{ID: id, Score: res.Score, Text: text, Metadata: payload}
		if opts.IncludeVectors {
			match.Embedding = res.Vector
		}
		matches = append(matches, match)
	}
	return matches
}

func qdrantMatch(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

// buildQdrantCondition translates an expression into a Qdrant filter condition.
func buildQdrantCondition(expr filter.Expression) (map[string]any, error) {
	switch e := expr.(type) {
	case *filter.Comparison:
		return buildQdrantComparison(e)
	case *filter.Operation:
		args := make([]any, 0, len(e.Arguments))
		for _, arg := range e.Arguments {
			cond, err := buildQdrantCondition(arg)
			if err != nil {
				return nil, err
			}
			args = append(args, cond)
		}
		switch e.Operator {
		case filter.And:
			return map[string]any{"must": args}, nil
		case filter.Or:
			return map[string]any{"should": args}, nil
		case filter.Not:
			return map[string]any{"must_not": []any{map[string]any{"must": args}}}, nil
		default:
			return nil, fmt.Errorf("qdrant: unsupported operator %q", e.Operator)
		}
	default:
		return nil, fmt.Errorf("qdrant: unsupported filter %T", expr)
	}
}

func buildQdrantComparison(c *filter.Comparison) (map[string]any, error) {
	switch c.Comparator {
	case filter.Eq:
		return qdrantMatch(c.Attribute, c.Value), nil
	case filter.Ne:
		return map[string]any{"must_not": []any{qdrantMatch(c.Attribute, c.Value)}}, nil
	case filter.In, filter.Nin:
		values, ok := filter.ListValue(c.Value)
		if !ok {
			values = []any{c.Value}
		}
		cond := map[string]any{"key": c.Attribute, "match": map[string]any{"any": values}}
		if c.Comparator == filter.Nin {
			return map[string]any{"must_not": []any{cond}}, nil
		}
		return cond, nil
	case filter.Gt, filter.Gte, filter.Lt, filter.Lte:
		switch c.Value.(type) {
		case int, int32, int64, float32, float64, json.Number:
		default:
			return nil, fmt.Errorf("qdrant: range on %q requires a number, got %T", c.Attribute, c.Value)
		}
		return map[string]any{
			"key":   c.Attribute,
			"range": map[string]any{string(c.Comparator): c.Value},
		}, nil
	default:
		return nil, fmt.Errorf("qdrant: unsupported comparator %q", c.Comparator)
	}
}

func (q *qdrantStore) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var buf io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		buf = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, buf)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: request failed: %w", err)
	}
	defer resp.Body.Close()
	payload, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("qdrant: read response: %w", readErr)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		if err := json.Unmarshal(payload, &apiErr); err != nil || apiErr.Status.Error == "" {
			return fmt.Errorf("qdrant: request failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("qdrant: %s (%d)", apiErr.Status.Error, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}
