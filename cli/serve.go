package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gcpassist/gcpassist/engine/infra/server"
	"github.com/gcpassist/gcpassist/pkg/config"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// ServeCmd starts the HTTP API.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the chat and transcription API server",
		Args:    cobra.NoArgs,
		RunE:    runServe,
	}
	cmd.Flags().String("host", "", "Host interface to bind")
	cmd.Flags().Int("port", 0, "Port to listen on")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	log := logger.FromContext(ctx)
	server.SetGinMode(cfg.Runtime.Environment)
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release resources", "error", err)
		}
	}()
	router := server.NewRouter(log, &cfg.Server, server.Dependencies{
		Conversation: app.Conversation,
		Transcriber:  app.Transcriber,
		Monitoring:   app.Monitoring,
	})
	srv := server.NewServer(&cfg.Server, router)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
