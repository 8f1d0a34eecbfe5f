package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

type redisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	dimension int
	maxTopK   int
}

const (
	redisDefaultMaxTopK   = 1000
	redisTextAttrKey      = "text"
	redisMetadataAttrKey  = "_metadata"
	redisMetadataPrefix   = "meta_"
	redisDefaultVectorKey = "knowledge_vectors"
)

func newRedisStore(ctx context.Context, cfg *Config) (*redisStore, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("redis: invalid dsn: %w", err)
	}
	opt.Protocol = 3
	opt.UnstableResp3 = true
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	return newRedisStoreWithClient(client, cfg), nil
}

func newRedisStoreWithClient(client redis.UniversalClient, cfg *Config) *redisStore {
	return &redisStore{
		client:    client,
		keyPrefix: determineRedisKey(cfg),
		dimension: cfg.Dimension,
		maxTopK:   chooseRedisMaxTopK(cfg.MaxTopK),
	}
}

func determineRedisKey(cfg *Config) string {
	for _, candidate := range []string{cfg.Collection, cfg.Index, cfg.Table} {
		if key := sanitizeRedisKey(candidate); key != "" {
			return key
		}
	}
	return redisDefaultVectorKey
}

// setKey gives every namespace its own vector set.
func (r *redisStore) setKey(namespace string) string {
	ns := sanitizeRedisKey(namespace)
	if ns == "" {
		ns = "default"
	}
	return r.keyPrefix + ":" + ns
}

func sanitizeRedisKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(unicode.ToLower(r))
		case r == ':', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "_:-")
}

func chooseRedisMaxTopK(maxTopK int) int {
	if maxTopK <= 0 {
		return redisDefaultMaxTopK
	}
	return maxTopK
}

func (r *redisStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := checkDimension("redis", records[i].ID, len(records[i].Embedding), r.dimension); err != nil {
			return err
		}
	}
	key := r.setKey(namespace)
	pipe := r.client.Pipeline()
	for _, record := range records {
		pipe.VAdd(ctx, key, record.ID, &redis.VectorValues{Val: float32ToFloat64(record.Embedding)})
		pipe.VSetAttr(ctx, key, record.ID, buildRedisAttributes(record))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: upsert pipeline: %w", err)
	}
	return nil
}

func (r *redisStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != r.dimension {
		return nil, fmt.Errorf("redis: query dimension mismatch (got %d want %d)", len(query), r.dimension)
	}
	args := &redis.VSimArgs{Count: int64(r.searchCount(opts.TopK))}
	if opts.Filter != nil {
		expr, err := buildRedisFilter(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedFilter, err)
		}
		args.Filter = expr
	}
	key := r.setKey(opts.Namespace)
	results, err := r.client.VSimWithArgsWithScores(
		ctx,
		key,
		&redis.VectorValues{Val: float32ToFloat64(query)},
		args,
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: similarity search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	matches, err := r.loadMatches(ctx, key, results, opts)
	if err != nil {
		return nil, err
	}
	SortMatches(matches)
	return matches, nil
}

func (r *redisStore) Close(context.Context) error {
	return r.client.Close()
}

func (r *redisStore) searchCount(topK int) int {
	count := resolveTopK(topK)
	if r.maxTopK > 0 && count > r.maxTopK {
		count = r.maxTopK
	}
	return count
}

func (r *redisStore) loadMatches(
	ctx context.Context,
	key string,
	results []redis.VectorScore,
	opts SearchOptions,
) ([]Match, error) {
	pipe := r.client.Pipeline()
	attrCmds := make([]*redis.StringCmd, len(results))
	embCmds := make([]*redis.SliceCmd, len(results))
	for i := range results {
		attrCmds[i] = pipe.VGetAttr(ctx, key, results[i].Name)
		if opts.IncludeVectors {
			embCmds[i] = pipe.VEmb(ctx, key, results[i].Name, false)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: fetch attributes: %w", err)
	}
	matches := make([]Match, 0, len(results))
	for i, item := range results {
		if opts.MinScore > 0 && item.Score < opts.MinScore {
			continue
		}
		raw, err := attrCmds[i].Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: read attributes for %q: %w", item.Name, err)
		}
		text, metadata, err := parseAttributeJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("redis: parse attributes for %q: %w", item.Name, err)
		}
		match := Match{ID: item.Name, Score: item.Score, Text: text, Metadata: metadata}
		if opts.IncludeVectors {
			values, embErr := embCmds[i].Result()
			if embErr != nil {
				return nil, fmt.Errorf("redis: read embedding for %q: %w", item.Name, embErr)
			}
			match.Embedding = toVector(values)
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func float32ToFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = float64(values[i])
	}
	return out
}

func toVector(values []any) []float32 {
	out := make([]float32, 0, len(values))
	for _, v := range values {
		switch n := v.(type) {
		case float64:
			out = append(out, float32(n))
		case string:
			f, err := strconv.ParseFloat(n, 32)
			if err != nil {
				continue
			}
			out = append(out, float32(f))
		}
	}
	return out
}

func buildRedisAttributes(record Record) map[string]any {
	attrs := make(map[string]any, len(record.Metadata)+2)
	attrs[redisTextAttrKey] = record.Text
	meta := core.CloneMap(record.Metadata)
	if meta == nil {
		meta = make(map[string]any)
	}
	attrs[redisMetadataAttrKey] = meta
	for key, value := range record.Metadata {
		attrs[metadataAttributeKey(key)] = value
	}
	return attrs
}

func metadataAttributeKey(key string) string {
	return redisMetadataPrefix + sanitizeAttributeKey(key)
}

func sanitizeAttributeKey(key string) string {
	builder := strings.Builder{}
	for _, r := range strings.TrimSpace(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(unicode.ToLower(r))
		default:
			builder.WriteRune('_')
		}
	}
	result := strings.Trim(builder.String(), "_")
	if result == "" {
		return "unknown"
	}
	return result
}

// buildRedisFilter compiles an expression into the VSIM FILTER syntax.
func buildRedisFilter(expr filter.Expression) (string, error) {
	switch e := expr.(type) {
	case *filter.Comparison:
		return buildRedisComparison(e)
	case *filter.Operation:
		parts := make([]string, 0, len(e.Arguments))
		for _, arg := range e.Arguments {
			part, err := buildRedisFilter(arg)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		if len(parts) == 0 {
			return "1", nil
		}
		switch e.Operator {
		case filter.And:
			return "(" + strings.Join(parts, " && ") + ")", nil
		case filter.Or:
			return "(" + strings.Join(parts, " || ") + ")", nil
		case filter.Not:
			return "!(" + strings.Join(parts, " && ") + ")", nil
		default:
			return "", fmt.Errorf("redis: unsupported operator %q", e.Operator)
		}
	default:
		return "", fmt.Errorf("redis: unsupported filter %T", expr)
	}
}

func buildRedisComparison(c *filter.Comparison) (string, error) {
	attr := "." + metadataAttributeKey(c.Attribute)
	switch c.Comparator {
	case filter.In, filter.Nin:
		values, ok := filter.ListValue(c.Value)
		if !ok {
			values = []any{c.Value}
		}
		list, err := redisLiteral(values)
		if err != nil {
			return "", err
		}
		clause := fmt.Sprintf("(%s in %s)", attr, list)
		if c.Comparator == filter.Nin {
			return "!" + clause, nil
		}
		return clause, nil
	}
	value, err := redisLiteral(c.Value)
	if err != nil {
		return "", err
	}
	ops := map[filter.Comparator]string{
		filter.Eq:  "==",
		filter.Ne:  "!=",
		filter.Gt:  ">",
		filter.Gte: ">=",
		filter.Lt:  "<",
		filter.Lte: "<=",
	}
	op, ok := ops[c.Comparator]
	if !ok {
		return "", fmt.Errorf("redis: unsupported comparator %q", c.Comparator)
	}
	if c.Comparator == filter.Ne {
		return fmt.Sprintf("!(%s == %s)", attr, value), nil
	}
	return fmt.Sprintf("(%s %s %s)", attr, op, value), nil
}

// redisLiteral renders a value as a filter literal. JSON string escaping
// matches what the expression parser accepts.
func redisLiteral(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("redis: encode filter value: %w", err)
	}
	return string(raw), nil
}

func parseAttributeJSON(payload string) (string, map[string]any, error) {
	if strings.TrimSpace(payload) == "" {
		return "", make(map[string]any), nil
	}
	var decoded struct {
		Text     string         `json:"text"`
		Metadata map[string]any `json:"_metadata"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return "", nil, err
	}
	if decoded.Metadata == nil {
		decoded.Metadata = make(map[string]any)
	}
	return decoded.Text, decoded.Metadata, nil
}
