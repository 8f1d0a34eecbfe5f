package ingest

import (
	"time"

	appconfig "github.com/gcpassist/gcpassist/pkg/config"
)

const (
	defaultBatchSize    = 64
	defaultRetryBackoff = 250 * time.Millisecond
	defaultWorkers      = 4
)

// Options controls ingestion execution details provided by callers.
type Options struct {
	// BatchSize bounds how many chunks go to the embedder or the store per call.
	BatchSize int
	// RetryAttempts is the number of extra tries for a failed batch. Zero disables retries.
	RetryAttempts int
	RetryBackoff  time.Duration
	// Workers bounds how many documents the Runner ingests concurrently.
	Workers int
}

// OptionsFromApp maps application settings onto pipeline options.
func OptionsFromApp(cfg *appconfig.IngestConfig, batchSize int) Options {
	opts := Options{BatchSize: batchSize}
	if cfg != nil {
		opts.RetryAttempts = cfg.RetryAttempts
		opts.Workers = cfg.Workers
	}
	return opts.normalized()
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	return o
}
