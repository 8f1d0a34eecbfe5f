package rag

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
	outcomeAnswered = "answered"
	outcomeFallback = "fallback"
	outcomeError    = "error"
	outcomeRejected = "rejected"
)

var (
	metricsOnce       sync.Once
	generationHist    metric.Float64Histogram
	answerCounter     metric.Int64Counter
	citationsPerReply metric.Int64Histogram
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gcpassist.rag")
		var err error
		generationHist, err = meter.Float64Histogram(
			metrics.MetricNameWithSubsystem("rag", "generation_duration_seconds"),
			metric.WithDescription("Latency of answer generation"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(metrics.ModelDurationBuckets...),
		)
		if err != nil {
			generationHist = nil
		}
		answerCounter, err = meter.Int64Counter(
			metrics.MetricNameWithSubsystem("rag", "answers_total"),
			metric.WithDescription("Conversation answers by outcome"),
			metric.WithUnit("1"),
		)
		if err != nil {
			answerCounter = nil
		}
		citationsPerReply, err = meter.Int64Histogram(
			metrics.MetricNameWithSubsystem("rag", "citations_per_answer"),
			metric.WithDescription("Citations extracted from each answer"),
			metric.WithUnit("1"),
			metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 8, 13),
		)
		if err != nil {
			citationsPerReply = nil
		}
	})
}

func recordGeneration(ctx context.Context, d time.Duration, outcome string) {
	ensureMetrics()
	if generationHist == nil {
		return
	}
	generationHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordAnswer(ctx context.Context, outcome string, citations int) {
	ensureMetrics()
	if answerCounter != nil {
		answerCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if citationsPerReply != nil && outcome == outcomeAnswered {
		citationsPerReply.Record(ctx, int64(citations))
	}
}
