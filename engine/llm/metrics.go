package llm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gcpassist/gcpassist/engine/infra/monitoring/metrics"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	metricsOnce     sync.Once
	completionHist  metric.Float64Histogram
	attemptsCounter metric.Int64Counter
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gcpassist.llm")
		var err error
		completionHist, err = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem("llm", "completion_duration_seconds"),
			metric.WithDescription("Latency of language model completions including retries"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(metrics.ModelDurationBuckets...),
		)
		if err != nil {
			completionHist = nil
		}
		attemptsCounter, err = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("llm", "attempts_total"),
			metric.WithDescription("Provider calls made for completions"),
			metric.WithUnit("1"),
		)
		if err != nil {
			attemptsCounter = nil
		}
	})
}

func recordCompletion(ctx context.Context, provider Provider, model string, d time.Duration, attempts int, outcome string) {
	ensureMetrics()
	attrs := metric.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	)
	if completionHist != nil {
		completionHist.Record(ctx, d.Seconds(), attrs)
	}
	if attemptsCounter != nil && attempts > 0 {
		attemptsCounter.Add(ctx, int64(attempts), attrs)
	}
}
