package knowledge

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
	metricsOnce           sync.Once
	metricsMu             sync.Mutex
	metricsInitErr        error
	ingestDurationHist    metric.Float64Histogram
	chunkCounter          metric.Int64Counter
	ingestFailureCounter  metric.Int64Counter
	queryLatencyHist      metric.Float64Histogram
	retrievalEmptyCounter metric.Int64Counter
	translationCounter    metric.Int64Counter
	filterFallbackCounter metric.Int64Counter
)

// Translation outcomes recorded by RecordTranslation.
const (
	TranslationFiltered = "filtered"
	TranslationNoFilter = "no_filter"
	TranslationDegraded = "degraded"
	TranslationDisabled = "disabled"
)

func RecordIngestDuration(ctx context.Context, namespace string, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestDurationHist == nil {
		return
	}
	ingestDurationHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("namespace", namespace)))
}

func RecordIngestChunks(ctx context.Context, namespace string, chunks int) {
	if chunks <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, int64(chunks), metric.WithAttributes(attribute.String("namespace", namespace)))
}

func RecordIngestFailure(ctx context.Context, namespace string, code string) {
	if err := ensureMetrics(); err != nil || ingestFailureCounter == nil {
		return
	}
	ingestFailureCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("code", code),
	))
}

func RecordQueryLatency(ctx context.Context, namespace string, mode string, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("mode", mode),
	))
}

func RecordRetrievalEmpty(ctx context.Context, namespace string) {
	if err := ensureMetrics(); err != nil || retrievalEmptyCounter == nil {
		return
	}
	retrievalEmptyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}

func RecordTranslation(ctx context.Context, outcome string) {
	if err := ensureMetrics(); err != nil || translationCounter == nil {
		return
	}
	translationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFilterFallback counts searches retried without a filter the vector
// backend could not express.
func RecordFilterFallback(ctx context.Context, namespace string) {
	if err := ensureMetrics(); err != nil || filterFallbackCounter == nil {
		return
	}
	filterFallbackCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("namespace", namespace)))
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	ingestDurationHist = nil
	chunkCounter = nil
	ingestFailureCounter = nil
	queryLatencyHist = nil
	retrievalEmptyCounter = nil
	translationCounter = nil
	filterFallbackCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gcpassist.knowledge")
		if err := initIngestMetrics(meter); err != nil {
			metricsInitErr = err
			return
		}
		metricsInitErr = initRetrievalMetrics(meter)
	})
	return metricsInitErr
}

func initIngestMetrics(meter metric.Meter) error {
	var err error
	ingestDurationHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("knowledge", "ingest_duration_seconds"),
		metric.WithDescription("Latency of single document ingestion runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.ModelDurationBuckets...),
	)
	if err != nil {
		return err
	}
	chunkCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "chunks_total"),
		metric.WithDescription("Number of chunks upserted into the vector index"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	ingestFailureCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "ingest_failures_total"),
		metric.WithDescription("Number of documents whose ingestion was aborted"),
		metric.WithUnit("1"),
	)
	return err
}

func initRetrievalMetrics(meter metric.Meter) error {
	var err error
	queryLatencyHist, err = meter.Float64Histogram(
		metrics.MetricNameWithSubsystem("knowledge", "query_latency_seconds"),
		metric.WithDescription("Latency of retrieval queries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(metrics.RetrievalDurationBuckets...),
	)
	if err != nil {
		return err
	}
	retrievalEmptyCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "retrieval_empty_total"),
		metric.WithDescription("Number of retrievals that returned no chunks"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	translationCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "query_translation_total"),
		metric.WithDescription("Structured query translations by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	filterFallbackCounter, err = meter.Int64Counter(
		metrics.MetricNameWithSubsystem("knowledge", "filter_fallback_total"),
		metric.WithDescription("Searches retried without a filter the vector backend rejected"),
		metric.WithUnit("1"),
	)
	return err
}
