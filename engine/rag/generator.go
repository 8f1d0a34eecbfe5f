package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gcpassist/gcpassist/engine/llm"
	"github.com/gcpassist/gcpassist/pkg/logger"
	"github.com/gcpassist/gcpassist/pkg/tplengine"
)

const answerPromptName = "answer"

const answerPromptTemplate = `You are an expert in clinical research and Good Clinical Practice (GCP).
Answer the question based only on the following context.
If you don't know the answer based on the context, say "I don't have enough information to answer this question", but also describe the kind of topics you are able to answer. Also suggest sample questions that you can answer accurately and that the user can ask.
When you use information from the context, cite it in square brackets as [source, p. N] using the source and page from its metadata. Omit the page when it is unknown.

Context:
{{ .Context }}

Question: {{ .Question }}

Answer:
`

var answerPrompts = tplengine.NewEngine().MustAddTemplate(answerPromptName, answerPromptTemplate)

// Generator produces an answer grounded in an assembled context.
type Generator struct {
	client llm.Client
	tracer trace.Tracer
}

func NewGenerator(client llm.Client) (*Generator, error) {
	if client == nil {
		return nil, errors.New("rag: language model client is required")
	}
	return &Generator{client: client, tracer: otel.Tracer("gcpassist.rag.generator")}, nil
}

// RenderPrompt fills the answer template.
func RenderPrompt(question, contextText string) (string, error) {
	return answerPrompts.Render(answerPromptName, struct {
		Context  string
		Question string
	}{Context: contextText, Question: question})
}

// Generate calls the model once. Any failure yields an empty string.
func (g *Generator) Generate(ctx context.Context, question, contextText string) string {
	ctx, span := g.tracer.Start(ctx, "gcpassist.rag.generate", trace.WithAttributes(
		attribute.Int("context_length", len(contextText)),
	))
	defer span.End()
	log := logger.FromContext(ctx)
	start := time.Now()
	prompt, err := RenderPrompt(question, contextText)
	if err != nil {
		log.Error("Failed to render answer prompt", "error", err)
		recordGeneration(ctx, time.Since(start), outcomeFallback)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ""
	}
	text, err := g.client.Complete(ctx, prompt)
	if err != nil {
		log.Warn("Answer generation failed", "error", err)
		recordGeneration(ctx, time.Since(start), outcomeFallback)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ""
	}
	text = strings.TrimSpace(text)
	outcome := outcomeAnswered
	if text == "" {
		outcome = outcomeFallback
	}
	recordGeneration(ctx, time.Since(start), outcome)
	return text
}
