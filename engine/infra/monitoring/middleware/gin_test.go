package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestHTTPMetrics(t *testing.T) {
	t.Run("Should record requests by route template", func(t *testing.T) {
		ResetMetricsForTesting()
		reader := sdkmetric.NewManualReader()
		meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(HTTPMetrics(meter))
		router.POST("/api/v0/chat", func(c *gin.Context) {
			c.Status(http.StatusBadRequest)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v0/chat", http.NoBody))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(t.Context(), &rm))
		found := map[string]bool{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				found[m.Name] = true
				if m.Name != "gcpassist_http_requests_total" {
					continue
				}
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				attrs := sum.DataPoints[0].Attributes.ToSlice()
				assert.Contains(t, attrs, attribute.String("path", "/api/v0/chat"))
				assert.Contains(t, attrs, attribute.String("status_code", "400"))
				assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			}
		}
		assert.True(t, found["gcpassist_http_requests_total"])
		assert.True(t, found["gcpassist_http_request_duration_seconds"])
		assert.True(t, found["gcpassist_http_requests_in_flight"])
	})

	t.Run("Should pass through without a meter", func(t *testing.T) {
		ResetMetricsForTesting()
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.Use(HTTPMetrics(nil))
		router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
