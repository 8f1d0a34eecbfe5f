package llm

import (
	"time"

	appconfig "github.com/gcpassist/gcpassist/pkg/config"
)

// Provider identifies a chat model backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderGoogleAI  Provider = "googleai"
	ProviderMock      Provider = "mock"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultBackoffBase = 500 * time.Millisecond
)

// Config describes how to reach and call a chat model.
type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	// Timeout bounds a single logical completion, retries included.
	Timeout          time.Duration
	RetryAttempts    int
	RetryBackoffBase time.Duration
	// RequestsPerMinute throttles outgoing calls. Zero means unlimited.
	RequestsPerMinute int
}

// ConfigFromApp maps the application configuration onto a model Config.
func ConfigFromApp(cfg *appconfig.LLMConfig) *Config {
	if cfg == nil {
		return nil
	}
	return &Config{
		Provider:          Provider(cfg.Provider),
		Model:             cfg.Model,
		APIKey:            cfg.APIKey.Value(),
		BaseURL:           cfg.BaseURL,
		Temperature:       cfg.Temperature,
		MaxTokens:         cfg.MaxTokens,
		Timeout:           cfg.Timeout,
		RetryAttempts:     cfg.RetryAttempts,
		RetryBackoffBase:  cfg.RetryBackoffBase,
		RequestsPerMinute: cfg.RequestsPerMinute,
	}
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c *Config) backoffBase() time.Duration {
	if c.RetryBackoffBase <= 0 {
		return defaultBackoffBase
	}
	return c.RetryBackoffBase
}
