package embedder

import (
	"time"

	appconfig "github.com/gcpassist/gcpassist/pkg/config"
)

// Provider identifies an embedding backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// Config describes how to reach an embedding model.
type Config struct {
	Provider      Provider
	Model         string
	APIKey        string
	BaseURL       string
	Dimension     int
	BatchSize     int
	StripNewLines bool
	CacheSize     int
	Timeout       time.Duration
}

// ConfigFromApp maps the application configuration onto an embedder Config.
func ConfigFromApp(cfg *appconfig.EmbedderConfig) *Config {
	if cfg == nil {
		return nil
	}
	return &Config{
		Provider:      Provider(cfg.Provider),
		Model:         cfg.Model,
		APIKey:        cfg.APIKey.Value(),
		BaseURL:       cfg.BaseURL,
		Dimension:     cfg.Dimension,
		BatchSize:     cfg.BatchSize,
		StripNewLines: cfg.StripNewLine,
		CacheSize:     cfg.CacheSize,
		Timeout:       cfg.Timeout,
	}
}
