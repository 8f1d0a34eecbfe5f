package embedder

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gcpassist/gcpassist/engine/infra/monitoring/metrics"
)

var (
	metricsOnce      sync.Once
	durationHist     metric.Float64Histogram
	textsCounter     metric.Int64Counter
	cacheLookupCount metric.Int64Counter
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gcpassist.embedder")
		var err error
		durationHist, err = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem("embedder", "request_duration_seconds"),
			metric.WithDescription("Latency of embedding requests"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(metrics.ModelDurationBuckets...),
		)
		if err != nil {
			durationHist = nil
		}
		textsCounter, err = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("embedder", "texts_total"),
			metric.WithDescription("Number of texts sent for embedding"),
			metric.WithUnit("1"),
		)
		if err != nil {
			textsCounter = nil
		}
		cacheLookupCount, err = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("embedder", "cache_lookups_total"),
			metric.WithDescription("Embedding cache lookups by result"),
			metric.WithUnit("1"),
		)
		if err != nil {
			cacheLookupCount = nil
		}
	})
}

func recordEmbedding(ctx context.Context, provider Provider, model string, texts int, d time.Duration, outcome string) {
	ensureMetrics()
	attrs := metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	)
	if durationHist != nil {
		durationHist.Record(ctx, d.Seconds(), attrs)
	}
	if textsCounter != nil {
		textsCounter.Add(ctx, int64(texts), attrs)
	}
}

func recordCache(ctx context.Context, provider Provider, hit bool) {
	ensureMetrics()
	if cacheLookupCount == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("result", result),
	))
}
