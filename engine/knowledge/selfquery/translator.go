package selfquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gcpassist/gcpassist/engine/knowledge"
	"github.com/gcpassist/gcpassist/engine/knowledge/filter"
	"github.com/gcpassist/gcpassist/engine/llm"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

const defaultTimeout = 20 * time.Second

// Translator turns a natural-language question into a semantic query plus an
// optional metadata filter restricted to a declared attribute schema. It never
// fails: any problem yields the question unchanged with no filter.
type Translator struct {
	client   llm.Client
	schema   knowledge.AttributeSchema
	contents string
	enabled  bool
	timeout  time.Duration
}

type Option func(*Translator)

// WithSchema replaces the default attribute schema.
func WithSchema(schema knowledge.AttributeSchema) Option {
	return func(t *Translator) {
		t.schema = schema
	}
}

// WithDocumentContents sets the corpus description shown to the model.
func WithDocumentContents(contents string) Option {
	return func(t *Translator) {
		if strings.TrimSpace(contents) != "" {
			t.contents = contents
		}
	}
}

// WithEnabled toggles model-backed translation. A disabled translator passes
// the question through untouched.
func WithEnabled(enabled bool) Option {
	return func(t *Translator) {
		t.enabled = enabled
	}
}

// WithTimeout bounds the model call made for one translation.
func WithTimeout(d time.Duration) Option {
	return func(t *Translator) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func New(client llm.Client, opts ...Option) *Translator {
	t := &Translator{
		client:   client,
		schema:   knowledge.DefaultSchema(),
		contents: knowledge.DefaultDocumentContents,
		enabled:  true,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.enabled = false
	}
	return t
}

// Schema returns the attributes filters may reference.
func (t *Translator) Schema() knowledge.AttributeSchema {
	return t.schema
}

// Translate structures question. The returned query is never empty when the
// question is not.
func (t *Translator) Translate(ctx context.Context, question string) knowledge.StructuredQuery {
	fallback := knowledge.StructuredQuery{Query: question}
	if !t.enabled {
		knowledge.RecordTranslation(ctx, knowledge.TranslationDisabled)
		return fallback
	}
	log := logger.FromContext(ctx)
	prompt, err := renderPrompt(question, t.contents, t.schema)
	if err != nil {
		log.Warn("Failed to render query translation prompt", "error", err)
		knowledge.RecordTranslation(ctx, knowledge.TranslationDegraded)
		return fallback
	}
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	raw, err := t.client.Complete(callCtx, prompt)
	if err != nil {
		log.Warn("Query translation unavailable, using semantic search only", "error", err)
		knowledge.RecordTranslation(ctx, knowledge.TranslationDegraded)
		return fallback
	}
	query, err := Parse(raw, question, t.schema)
	if err != nil {
		log.Warn("Unusable query translation, using semantic search only", "error", err)
		knowledge.RecordTranslation(ctx, knowledge.TranslationDegraded)
		return fallback
	}
	if query.HasFilter() {
		knowledge.RecordTranslation(ctx, knowledge.TranslationFiltered)
		log.Debug("Translated question", "query", query.Query, "filter", query.Filter)
	} else {
		knowledge.RecordTranslation(ctx, knowledge.TranslationNoFilter)
	}
	return query
}

// Parse decodes a model reply into a StructuredQuery. Code fences and prose
// around the JSON object are ignored, clauses on attributes outside schema are
// pruned, and an empty rewritten query falls back to question. An error means
// the reply held no usable structure at all.
func Parse(raw string, question string, schema knowledge.AttributeSchema) (knowledge.StructuredQuery, error) {
	doc, ok := extractObject(raw)
	if !ok {
		return knowledge.StructuredQuery{}, errors.New("selfquery: reply contains no json object")
	}
	parsed := gjson.Parse(doc)
	query := strings.TrimSpace(parsed.Get("query").String())
	if query == "" {
		query = question
	}
	out := knowledge.StructuredQuery{Query: query}
	value := parsed.Get("filter")
	if !value.Exists() {
		return out, nil
	}
	expr, err := filter.FromResult(value)
	if errors.Is(err, filter.ErrNoFilter) {
		return out, nil
	}
	if err != nil {
		return knowledge.StructuredQuery{}, fmt.Errorf("selfquery: %w", err)
	}
	out.Filter = filter.Prune(expr, schema.Has)
	return out, nil
}

// extractObject returns the outermost JSON object in s.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	doc := s[start : end+1]
	if !gjson.Valid(doc) {
		return "", false
	}
	return doc, true
}
