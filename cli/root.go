package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gcpassist/gcpassist/engine/infra/monitoring"
	"github.com/gcpassist/gcpassist/pkg/config"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

const (
	defaultConfigFile = "gcpassist.yaml"
	defaultEnvFile    = ".env"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gcpassist",
		Short:         "Good Clinical Practice research assistant",
		Long:          "Ingest clinical research guidelines and answer questions about them with cited sources.",
		Version:       monitoring.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the YAML config file")
	flags.String("env-file", defaultEnvFile, "Path to the environment variables file")
	flags.String("log-level", "", "Log level (debug, info, warn, error, disabled)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include source locations in logs")

	root.AddCommand(
		ServeCmd(),
		IngestCmd(),
		AskCmd(),
	)
	return root
}

// SetupGlobalConfig loads configuration, installs the logger and stores both
// on the command context.
func SetupGlobalConfig(cmd *cobra.Command) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	sources := []config.Source{}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	sources = append(sources, config.NewCLIProvider(cliOverrides(cmd)))
	manager := config.NewManager(config.NewService(config.WithEnvFiles(envFile)))
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := manager.Load(ctx, sources...)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(logger.LogLevel(cfg.Runtime.LogLevel), cfg.Runtime.LogJSON, cfg.Runtime.LogSource)
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithManager(ctx, manager)
	cmd.SetContext(ctx)
	log.Debug("Configuration loaded", "config_file", configFile, "environment", cfg.Runtime.Environment)
	return nil
}

// cliOverrides maps explicitly set flags onto dotted config paths.
func cliOverrides(cmd *cobra.Command) map[string]any {
	out := make(map[string]any)
	logLevel, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return out
	}
	if cmd.Flags().Changed("log-level") {
		out["runtime.log_level"] = logLevel
	}
	if cmd.Flags().Changed("log-json") {
		out["runtime.log_json"] = logJSON
	}
	if cmd.Flags().Changed("log-source") {
		out["runtime.log_source"] = logSource
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if path, ok := commandFlagPaths[f.Name]; ok {
			out[path] = f.Value.String()
		}
	})
	return out
}

// commandFlagPaths lists subcommand flags that override configuration.
var commandFlagPaths = map[string]string{
	"host":    "server.host",
	"port":    "server.port",
	"mode":    "retrieval.mode",
	"top-k":   "retrieval.top_k",
	"workers": "ingest.workers",
}
