package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
)

const pgDefaultTable = "knowledge_chunks"

// pgPool is the subset of pgxpool.Pool used by the store.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type pgStore struct {
	pool       pgPool
	table      string
	tableIdent string
	indexIdent string
	dimension  int
	metric     pgMetric
}

type pgMetric struct {
	opsClass string
	operator string
	score    string
}

func choosePGMetric(metric string) pgMetric {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "l2", "euclid", "euclidean":
		return pgMetric{opsClass: "vector_l2_ops", operator: "<->", score: "-(embedding <-> $1)"}
	case "dot", "ip":
		return pgMetric{opsClass: "vector_ip_ops", operator: "<#>", score: "-(embedding <#> $1)"}
	default:
		return pgMetric{opsClass: "vector_cosine_ops", operator: "<=>", score: "1 - (embedding <=> $1)"}
	}
}

func newPGStore(ctx context.Context, cfg *Config) (*pgStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect to postgres: %w", err)
	}
	store := newPGStoreWithPool(pool, cfg)
	if cfg.EnsureSchema {
		if err := store.ensureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	trackVectorPool(store.table, pool)
	return store, nil
}

func newPGStoreWithPool(pool pgPool, cfg *Config) *pgStore {
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = pgDefaultTable
	}
	return &pgStore{
		pool:       pool,
		table:      table,
		tableIdent: pgx.Identifier{table}.Sanitize(),
		indexIdent: pgx.Identifier{table + "_embedding_idx"}.Sanitize(),
		dimension:  cfg.Dimension,
		metric:     choosePGMetric(cfg.Metric),
	}
}

func (p *pgStore) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		namespace TEXT NOT NULL,
		id TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		document TEXT,
		metadata JSONB,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (namespace, id)
	)`, p.tableIdent, p.dimension)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	createIndex := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding %s)",
		p.indexIdent,
		p.tableIdent,
		p.metric.opsClass,
	)
	if _, err := p.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("pgvector: create index: %w", err)
	}
	return nil
}

func (p *pgStore) Upsert(ctx context.Context, namespace string, records []Record) (err error) {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if dimErr := checkDimension("pgvector", records[i].ID, len(records[i].Embedding), p.dimension); dimErr != nil {
			return dimErr
		}
	}
	tx, txErr := p.pool.Begin(ctx)
	if txErr != nil {
		return fmt.Errorf("pgvector: begin tx: %w", txErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("pgvector: rollback failed: %w; original error: %v", rbErr, err)
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("pgvector: commit: %w", commitErr)
		}
	}()
	stmt := fmt.Sprintf(`INSERT INTO %s (namespace, id, embedding, document, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (namespace, id) DO UPDATE SET
    embedding = excluded.embedding,
    document = excluded.document,
    metadata = excluded.metadata,
    updated_at = excluded.updated_at`, p.tableIdent)
	now := time.Now().UTC()
	for i := range records {
		rec := records[i]
		metadata, marshalErr := json.Marshal(rec.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("pgvector: marshal metadata for %q: %w", rec.ID, marshalErr)
		}
		vector := pgvector.NewVector(rec.Embedding)
		if _, execErr := tx.Exec(ctx, stmt, namespace, rec.ID, vector, rec.Text, metadata, now); execErr != nil {
			return fmt.Errorf("pgvector: upsert %q: %w", rec.ID, execErr)
		}
	}
	return nil
}

func (p *pgStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != p.dimension {
		return nil, fmt.Errorf("pgvector: query dimension mismatch (got %d want %d)", len(query), p.dimension)
	}
	sql, args, err := p.buildSearch(query, opts)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()
	results := make([]Match, 0, resolveTopK(opts.TopK))
	for rows.Next() {
		match, scanErr := scanPGMatch(rows, opts.IncludeVectors)
		if scanErr != nil {
			return nil, scanErr
		}
		if opts.MinScore > 0 && match.Score < opts.MinScore {
			continue
		}
		results = append(results, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}
	SortMatches(results)
	return results, nil
}

func (p *pgStore) buildSearch(query []float32, opts SearchOptions) (string, []any, error) {
	b := &pgFilterBuilder{args: []any{pgvector.NewVector(query), opts.Namespace}}
	builder := strings.Builder{}
	builder.WriteString("SELECT id, COALESCE(document, ''), metadata, ")
	builder.WriteString(p.metric.score)
	builder.WriteString(" AS score")
	if opts.IncludeVectors {
		builder.WriteString(", embedding")
	}
	builder.WriteString(" FROM ")
	builder.WriteString(p.tableIdent)
	builder.WriteString(" WHERE namespace = $2")
	if opts.Filter != nil {
		clause, err := b.compile(opts.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrUnsupportedFilter, err)
		}
		builder.WriteString(" AND ")
		builder.WriteString(clause)
	}
	builder.WriteString(fmt.Sprintf(" ORDER BY embedding %s $1 ASC, id ASC LIMIT %s", p.metric.operator, b.bind(resolveTopK(opts.TopK))))
	return builder.String(), b.args, nil
}

func scanPGMatch(rows pgx.Rows, withVector bool) (Match, error) {
	var (
		id          string
		document    string
		metadataRaw []byte
		score       float64
		vector      pgvector.Vector
	)
	dest := []any{&id, &document, &metadataRaw, &score}
	if withVector {
		dest = append(dest, &vector)
	}
	if err := rows.Scan(dest...); err != nil {
		return Match{}, fmt.Errorf("pgvector: scan: %w", err)
	}
	meta := make(map[string]any)
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &meta); err != nil {
			return Match{}, fmt.Errorf("pgvector: decode metadata for %q: %w", id, err)
		}
	}
	match := Match{ID: id, Score: score, Text: document, Metadata: meta}
	if withVector {
		match.Embedding = vector.Slice()
	}
	return match, nil
}

func (p *pgStore) Close(_ context.Context) error {
	untrackVectorPool(p.table)
	p.pool.Close()
	return nil
}

// pgFilterBuilder compiles filter expressions into a JSONB predicate over the
// metadata column, appending bound parameters as it goes.
type pgFilterBuilder struct {
	args []any
}

func (b *pgFilterBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *pgFilterBuilder) compile(expr filter.Expression) (string, error) {
	switch e := expr.(type) {
	case *filter.Comparison:
		return b.compileComparison(e)
	case *filter.Operation:
		return b.compileOperation(e)
	default:
		return "", fmt.Errorf("pgvector: unsupported filter %T", expr)
	}
}

func (b *pgFilterBuilder) compileOperation(o *filter.Operation) (string, error) {
	parts := make([]string, 0, len(o.Arguments))
	for _, arg := range o.Arguments {
		part, err := b.compile(arg)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	switch o.Operator {
	case filter.And:
		if len(parts) == 0 {
			return "TRUE", nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	case filter.Or:
		if len(parts) == 0 {
			return "TRUE", nil
		}
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case filter.Not:
		if len(parts) == 0 {
			return "TRUE", nil
		}
		return "(NOT (" + strings.Join(parts, " AND ") + "))", nil
	default:
		return "", fmt.Errorf("pgvector: unsupported operator %q", o.Operator)
	}
}

func (b *pgFilterBuilder) compileComparison(c *filter.Comparison) (string, error) {
	switch c.Comparator {
	case filter.Eq:
		return b.contains(c.Attribute, c.Value)
	case filter.Ne:
		clause, err := b.contains(c.Attribute, c.Value)
		if err != nil {
			return "", err
		}
		return "(NOT " + clause + ")", nil
	case filter.In, filter.Nin:
		values, ok := filter.ListValue(c.Value)
		if !ok {
			values = []any{c.Value}
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			part, err := b.contains(c.Attribute, v)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		clause := "FALSE"
		if len(parts) > 0 {
			clause = "(" + strings.Join(parts, " OR ") + ")"
		}
		if c.Comparator == filter.Nin {
			return "(NOT " + clause + ")", nil
		}
		return clause, nil
	case filter.Gt, filter.Gte, filter.Lt, filter.Lte:
		return b.order(c)
	default:
		return "", fmt.Errorf("pgvector: unsupported comparator %q", c.Comparator)
	}
}

// contains matches scalar attributes by equality and array attributes by membership.
func (b *pgFilterBuilder) contains(attribute string, value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("pgvector: encode filter value for %q: %w", attribute, err)
	}
	return fmt.Sprintf("COALESCE(metadata -> %s @> %s::jsonb, FALSE)", b.bind(attribute), b.bind(string(raw))), nil
}

func (b *pgFilterBuilder) order(c *filter.Comparison) (string, error) {
	ops := map[filter.Comparator]string{filter.Gt: ">", filter.Gte: ">=", filter.Lt: "<", filter.Lte: "<="}
	op := ops[c.Comparator]
	key := b.bind(c.Attribute)
	switch v := c.Value.(type) {
	case string:
		return fmt.Sprintf(
			"CASE WHEN jsonb_typeof(metadata -> %s) = 'string' THEN metadata ->> %s %s %s ELSE FALSE END",
			key, key, op, b.bind(v),
		), nil
	case int, int32, int64, float32, float64, json.Number:
		return fmt.Sprintf(
			"CASE WHEN jsonb_typeof(metadata -> %s) = 'number' THEN (metadata ->> %s)::numeric %s %s::numeric ELSE FALSE END",
			key, key, op, b.bind(fmt.Sprint(v)),
		), nil
	default:
		return "", fmt.Errorf("pgvector: cannot order %q by %T", c.Attribute, c.Value)
	}
}
