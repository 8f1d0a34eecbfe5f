package vectordb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	monitoringmetrics "github.com/gcpassist/gcpassist/engine/infra/monitoring/metrics"
)

const labelUnknownValue = "unknown"

var (
	vectorMetricsOnce       sync.Once
	vectorMetricsErr        error
	vectorSearchLatency     metric.Float64Histogram
	vectorResultsCount      metric.Float64Histogram
	vectorUpsertLatency     metric.Float64Histogram
	vectorUpsertedRecords   metric.Int64Counter
	vectorActiveConnections metric.Int64ObservableGauge
	vectorErrorsTotal       metric.Int64Counter
	vectorPools             sync.Map
	vectorGaugeReg          metric.Registration
)

// ensureVectorMetrics lazily initializes metric instruments used by vector stores.
func ensureVectorMetrics() error {
	vectorMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("gcpassist.knowledge.vector")
		if err := initVectorHistograms(meter); err != nil {
			vectorMetricsErr = err
			return
		}
		if err := initVectorCounters(meter); err != nil {
			vectorMetricsErr = err
			return
		}
		if err := initVectorGauge(meter); err != nil {
			vectorMetricsErr = err
		}
	})
	return vectorMetricsErr
}

func initVectorHistograms(meter metric.Meter) error {
	var err error
	vectorSearchLatency, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "search_seconds"),
		metric.WithDescription("Vector similarity search latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(monitoringmetrics.RetrievalDurationBuckets...),
	)
	if err != nil {
		return err
	}
	vectorResultsCount, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "results_per_search"),
		metric.WithDescription("Number of results returned per search"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 8, 16, 32, 64),
	)
	if err != nil {
		return err
	}
	vectorUpsertLatency, err = meter.Float64Histogram(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "upsert_seconds"),
		metric.WithDescription("Vector upsert latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(monitoringmetrics.ModelDurationBuckets...),
	)
	return err
}

func initVectorCounters(meter metric.Meter) error {
	var err error
	vectorErrorsTotal, err = meter.Int64Counter(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "errors_total"),
		metric.WithDescription("Vector store operation errors"),
	)
	if err != nil {
		return err
	}
	vectorUpsertedRecords, err = meter.Int64Counter(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "records_upserted_total"),
		metric.WithDescription("Records written to the vector store"),
	)
	return err
}

func initVectorGauge(meter metric.Meter) error {
	var err error
	vectorActiveConnections, err = meter.Int64ObservableGauge(
		monitoringmetrics.MetricNameWithSubsystem("vectordb", "connections_active"),
		metric.WithDescription("Active postgres connections held by pgvector stores"),
	)
	if err != nil {
		return err
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		vectorPools.Range(func(key, value any) bool {
			pool, ok := value.(*pgxpool.Pool)
			if !ok || pool == nil {
				return true
			}
			table, ok := key.(string)
			if !ok || strings.TrimSpace(table) == "" {
				table = labelUnknownValue
			}
			observer.ObserveInt64(
				vectorActiveConnections,
				int64(pool.Stat().AcquiredConns()),
				metric.WithAttributes(attribute.String("table", table)),
			)
			return true
		})
		return nil
	}, vectorActiveConnections)
	if err == nil {
		vectorGaugeReg = reg
	}
	return err
}

// ShutdownVectorMetrics unregisters the gauge callback.
func ShutdownVectorMetrics() {
	if vectorGaugeReg != nil {
		//nolint:errcheck // Unregister errors are non-critical during shutdown
		_ = vectorGaugeReg.Unregister()
	}
}

func recordVectorSearch(ctx context.Context, provider string, topK int, duration time.Duration, resultCount int) {
	if err := ensureVectorMetrics(); err != nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("provider", sanitizeLabel(provider)),
		attribute.Int("top_k", topK),
	)
	vectorSearchLatency.Record(ctx, duration.Seconds(), labels)
	vectorResultsCount.Record(ctx, float64(resultCount), labels)
}

func recordVectorUpsert(ctx context.Context, provider string, records int, duration time.Duration) {
	if err := ensureVectorMetrics(); err != nil {
		return
	}
	labels := metric.WithAttributes(attribute.String("provider", sanitizeLabel(provider)))
	vectorUpsertLatency.Record(ctx, duration.Seconds(), labels)
	vectorUpsertedRecords.Add(ctx, int64(records), labels)
}

func recordVectorError(ctx context.Context, provider string, operation string) {
	if err := ensureVectorMetrics(); err != nil || vectorErrorsTotal == nil {
		return
	}
	vectorErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", sanitizeLabel(provider)),
		attribute.String("operation", sanitizeLabel(operation)),
	))
}

// trackVectorPool registers a pgx pool so the gauge callback can observe it.
func trackVectorPool(table string, pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	if err := ensureVectorMetrics(); err != nil {
		return
	}
	vectorPools.Store(sanitizeLabel(table), pool)
}

func untrackVectorPool(table string) {
	vectorPools.Delete(sanitizeLabel(table))
}

func sanitizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return labelUnknownValue
	}
	return strings.ToLower(trimmed)
}
