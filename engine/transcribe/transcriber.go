package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	appconfig "github.com/gcpassist/gcpassist/pkg/config"
	"github.com/gcpassist/gcpassist/pkg/logger"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultModel    = "whisper-1"
	defaultTimeout  = 60 * time.Second
	defaultFileName = "audio.wav"
)

// ErrDisabled is returned by New when transcription is turned off.
var ErrDisabled = errors.New("transcription is disabled")

// Transcriber converts recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error)
}

// Config describes an OpenAI compatible transcription endpoint.
type Config struct {
	Enabled bool
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ConfigFromApp maps the application transcription section onto Config.
func ConfigFromApp(cfg *appconfig.TranscriptionConfig) *Config {
	if cfg == nil {
		return &Config{}
	}
	return &Config{
		Enabled: cfg.Enabled,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey.Value(),
		Timeout: cfg.Timeout,
	}
}

// Client posts audio to a /audio/transcriptions endpoint.
type Client struct {
	http  *resty.Client
	model string
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// New builds a Client, or returns ErrDisabled.
func New(cfg *Config) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, ErrDisabled
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &Client{http: client, model: model}, nil
}

func (c *Client) Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error) {
	if audio == nil {
		return "", errors.New("transcribe: audio is required")
	}
	if strings.TrimSpace(fileName) == "" {
		fileName = defaultFileName
	}
	start := time.Now()
	var out transcriptionResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", fileName, audio).
		SetFormData(map[string]string{"model": c.model}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("transcribe: request failed: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return "", fmt.Errorf("transcribe: status %d: %s", resp.StatusCode(), msg)
	}
	logger.FromContext(ctx).Debug("Audio transcribed", "model", c.model, "duration", time.Since(start))
	return out.Text, nil
}
