package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gcpassist/gcpassist/engine/infra/monitoring"
	"github.com/gcpassist/gcpassist/engine/knowledge"
	"github.com/gcpassist/gcpassist/engine/knowledge/chunk"
	"github.com/gcpassist/gcpassist/engine/knowledge/embedder"
	"github.com/gcpassist/gcpassist/engine/knowledge/ingest"
	"github.com/gcpassist/gcpassist/engine/knowledge/loader"
	"github.com/gcpassist/gcpassist/engine/knowledge/retriever"
	"github.com/gcpassist/gcpassist/engine/knowledge/selfquery"
	"github.com/gcpassist/gcpassist/engine/knowledge/vectordb"
	"github.com/gcpassist/gcpassist/engine/llm"
	"github.com/gcpassist/gcpassist/engine/rag"
	"github.com/gcpassist/gcpassist/engine/transcribe"
	"github.com/gcpassist/gcpassist/pkg/config"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// App holds the wired services shared by every command.
type App struct {
	Config       *config.Config
	Monitoring   *monitoring.Service
	Embedder     *embedder.Adapter
	Store        vectordb.Store
	Model        llm.Client
	Retriever    *retriever.Service
	Conversation *rag.Conversation
	// Transcriber is nil when transcription is disabled.
	Transcriber transcribe.Transcriber
}

// NewApp builds the service graph from configuration.
func NewApp(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	log := logger.FromContext(ctx)
	app := &App{Config: cfg}
	app.Monitoring = monitoring.NewMonitoringServiceWithFallback(ctx, monitoring.ConfigFromApp(&cfg.Monitoring))
	if app.Monitoring.IsInitialized() {
		app.Monitoring.SetAsGlobal()
	}
	emb, err := embedder.New(embedder.ConfigFromApp(&cfg.Embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	app.Embedder = emb
	store, err := vectordb.New(ctx, vectordb.ConfigFromApp(&cfg.VectorDB, cfg.Embedder.Dimension))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	app.Store = store
	defer func() {
		if err != nil {
			_ = store.Close(ctx)
		}
	}()
	model, err := llm.New(ctx, llm.ConfigFromApp(&cfg.LLM))
	if err != nil {
		return nil, err
	}
	app.Model = model
	translator := selfquery.New(model,
		selfquery.WithSchema(knowledge.DefaultSchema()),
		selfquery.WithDocumentContents(cfg.Retrieval.DocumentContents),
		selfquery.WithEnabled(cfg.Retrieval.SelfQuery),
	)
	app.Retriever, err = retriever.NewService(translator, emb, store, retriever.OptionsFromApp(&cfg.Retrieval))
	if err != nil {
		return nil, err
	}
	generator, err := rag.NewGenerator(model)
	if err != nil {
		return nil, err
	}
	app.Conversation, err = rag.NewConversation(
		app.Retriever,
		generator,
		rag.SettingsFromApp(&cfg.Chat, cfg.Retrieval.TopK),
	)
	if err != nil {
		return nil, err
	}
	tr, err := transcribe.New(transcribe.ConfigFromApp(&cfg.Transcription))
	switch {
	case errors.Is(err, transcribe.ErrDisabled):
		log.Debug("Transcription disabled")
	case err != nil:
		return nil, fmt.Errorf("failed to create transcriber: %w", err)
	default:
		app.Transcriber = tr
	}
	log.Info("Services ready",
		"llm_provider", cfg.LLM.Provider,
		"embedder_provider", cfg.Embedder.Provider,
		"vector_db", cfg.VectorDB.Provider,
		"retrieval_mode", cfg.Retrieval.Mode,
	)
	return app, nil
}

// NewIngestPipeline builds the ingestion pipeline over the app's embedder
// and store.
func (a *App) NewIngestPipeline() (*ingest.Pipeline, error) {
	chunker, err := chunk.NewProcessor(chunk.Settings{
		Strategy: a.Config.Ingest.ChunkStrategy,
		Size:     a.Config.Ingest.ChunkSize,
		Overlap:  a.Config.Ingest.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	return ingest.NewPipeline(
		loader.NewFileLoader(),
		chunker,
		a.Embedder,
		a.Store,
		ingest.OptionsFromApp(&a.Config.Ingest, a.Config.Embedder.BatchSize),
	)
}

// Close releases the store and flushes metrics.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close(ctx))
	}
	if a.Monitoring != nil {
		errs = append(errs, a.Monitoring.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
