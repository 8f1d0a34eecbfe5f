package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/gcpassist/gcpassist/engine/core"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

// Client completes a single text prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LangChainClient drives an llms.Model with a per-call timeout, bounded retries
// for transient failures and an optional request rate limit.
type LangChainClient struct {
	model   llms.Model
	config  Config
	limiter *rate.Limiter
}

// New builds a client for the configured provider.
func New(ctx context.Context, cfg *Config) (*LangChainClient, error) {
	model, err := NewModel(ctx, cfg)
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeLanguageModel, map[string]any{"provider": providerOf(cfg)})
	}
	return Wrap(cfg, model)
}

// Wrap builds a client around an existing model.
func Wrap(cfg *Config, model llms.Model) (*LangChainClient, error) {
	if cfg == nil {
		return nil, errors.New("llm: config is required")
	}
	if model == nil {
		return nil, errors.New("llm: model is required")
	}
	client := &LangChainClient{model: model, config: *cfg}
	if cfg.RequestsPerMinute > 0 {
		client.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return client, nil
}

func (c *LangChainClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.timeout())
	defer cancel()
	start := time.Now()
	text, attempts, err := c.complete(ctx, prompt)
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeError
	}
	recordCompletion(ctx, c.config.Provider, c.config.Model, time.Since(start), attempts, outcome)
	if err != nil {
		logger.FromContext(ctx).Warn(
			"Language model call failed",
			"provider", c.config.Provider,
			"model", c.config.Model,
			"attempts", attempts,
			"error", err,
		)
		return "", core.NewError(err, core.ErrCodeLanguageModel, map[string]any{
			"provider": string(c.config.Provider),
			"model":    c.config.Model,
		})
	}
	return text, nil
}

func (c *LangChainClient) complete(ctx context.Context, prompt string) (string, int, error) {
	backoff := retry.NewExponential(c.config.backoffBase())
	backoff = retry.WithMaxDuration(c.config.timeout(), backoff)
	backoff = retry.WithMaxRetries(uint64(max(c.config.RetryAttempts, 0)), backoff)
	var text string
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, c.callOptions()...)
		if err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", attempts, err
	}
	return text, attempts, nil
}

func (c *LangChainClient) callOptions() []llms.CallOption {
	var opts []llms.CallOption
	if c.config.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.config.Temperature))
	}
	if c.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.config.MaxTokens))
	}
	return opts
}

type retryable interface {
	Retryable() bool
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "500", "502", "503", "504",
		"rate limit", "too many requests", "timeout", "temporarily unavailable", "overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func providerOf(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	return string(cfg.Provider)
}

// Func adapts a plain function to Client.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	if f == nil {
		return "", fmt.Errorf("llm: nil completion func")
	}
	return f(ctx, prompt)
}
