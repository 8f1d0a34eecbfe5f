package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/engine/knowledge"
	appconfig "github.com/gcpassist/gcpassist/pkg/config"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// DefaultFallbackMessage is returned when no answer could be generated.
const DefaultFallbackMessage = "Unable to retrieve a response, please try again"

// RoleAssistant and RoleUser are the message roles exchanged with clients.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// TimestampLayout formats response timestamps (RFC 3339, UTC, milliseconds).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Retriever fetches the chunks relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]knowledge.RetrievedChunk, error)
}

// AnswerGenerator turns a question and assembled context into answer text,
// returning "" on failure.
type AnswerGenerator interface {
	Generate(ctx context.Context, question, contextText string) string
}

// Message is one prior turn supplied by the client. It is carried through
// untouched.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// Request is a single conversation turn. Model is advisory and History is
// not used for retrieval or generation.
type Request struct {
	Message string    `json:"message"`
	Model   string    `json:"model,omitempty"`
	History []Message `json:"history,omitempty"`
}

// Response is the assistant reply.
type Response struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp"`
	Citations []Citation `json:"citations"`
}

// Settings tunes a Conversation.
type Settings struct {
	// K is the number of chunks retrieved per question. Zero uses the retriever default.
	K               int
	FallbackMessage string
	// Timeout bounds retrieval plus generation. Zero disables it.
	Timeout time.Duration
}

// Conversation answers questions: retrieve, assemble, generate, cite.
type Conversation struct {
	retriever Retriever
	generator AnswerGenerator
	settings  Settings
	tracer    trace.Tracer
	now       func() time.Time
}

func NewConversation(retriever Retriever, generator AnswerGenerator, settings Settings) (*Conversation, error) {
	if retriever == nil {
		return nil, errors.New("rag: retriever is required")
	}
	if generator == nil {
		return nil, errors.New("rag: generator is required")
	}
	if strings.TrimSpace(settings.FallbackMessage) == "" {
		settings.FallbackMessage = DefaultFallbackMessage
	}
	return &Conversation{
		retriever: retriever,
		generator: generator,
		settings:  settings,
		tracer:    otel.Tracer("gcpassist.rag.conversation"),
		now:       time.Now,
	}, nil
}

// NewValidationError builds the client error returned for a malformed request.
func NewValidationError(message string) error {
	return core.NewError(errors.New(message), core.ErrCodeValidation, nil)
}

// Answer runs one turn. A blank message is a validation error and retrieval
// failures are returned; a generation failure yields the fallback message with
// no citations.
func (c *Conversation) Answer(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Message)
	if question == "" {
		recordAnswer(ctx, outcomeRejected, 0)
		return nil, NewValidationError("Message is required")
	}
	log := logger.FromContext(ctx).With("history", len(req.History))
	if req.Model != "" {
		log = log.With("requested_model", req.Model)
	}
	ctx = logger.ContextWithLogger(ctx, log)
	runCtx, span := c.tracer.Start(ctx, "gcpassist.rag.answer", trace.WithAttributes(
		attribute.Int("k", c.settings.K),
	))
	defer span.End()
	if c.settings.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, c.settings.Timeout)
		defer cancel()
	}

	chunks, err := c.retriever.Retrieve(runCtx, question, c.settings.K)
	if err != nil {
		recordAnswer(ctx, outcomeError, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("Retrieval failed for question", "error", err)
		return nil, err
	}
	text := c.generator.Generate(runCtx, question, Assemble(chunks))
	if err := ctx.Err(); err != nil {
		recordAnswer(ctx, outcomeError, 0)
		return nil, err
	}
	resp := &Response{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Timestamp: c.now().UTC().Format(TimestampLayout),
		Citations: []Citation{},
	}
	if text == "" {
		resp.Content = c.settings.FallbackMessage
		recordAnswer(ctx, outcomeFallback, 0)
		log.Warn("Returning fallback answer", "chunks", len(chunks))
		return resp, nil
	}
	resp.Content = text
	resp.Citations = ExtractCitations(text)
	recordAnswer(ctx, outcomeAnswered, len(resp.Citations))
	span.SetAttributes(attribute.Int("chunks", len(chunks)), attribute.Int("citations", len(resp.Citations)))
	log.Info("Answered question", "chunks", len(chunks), "citations", len(resp.Citations))
	return resp, nil
}

// SettingsFromApp maps chat configuration onto Settings.
func SettingsFromApp(cfg *appconfig.ChatConfig, k int) Settings {
	settings := Settings{K: k}
	if cfg != nil {
		settings.FallbackMessage = cfg.FallbackMessage
		settings.Timeout = cfg.RequestTimeout
	}
	return settings
}
