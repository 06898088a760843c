package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCall(t *testing.T) {
	registry := NewRegistry()

	registry.Metrics.RecordCall("opencage", "success", 150*time.Millisecond)
	registry.Metrics.RecordCall("opencage", "success", 80*time.Millisecond)
	registry.Metrics.RecordCall("opencage", "error", 10*time.Millisecond)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(registry.Metrics.CallsTotal.WithLabelValues("opencage", "success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.Metrics.CallsTotal.WithLabelValues("opencage", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(registry.Metrics.CallDuration),
		"every recorded call observes the duration histogram")
}

func TestStatsRecorderOutcomes(t *testing.T) {
	registry := NewRegistry()

	registry.Metrics.RecordSuccess("abstract")
	registry.Metrics.RecordError("abstract")
	registry.Metrics.RecordError("abstract")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.Metrics.CallsTotal.WithLabelValues("abstract", "success")))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(registry.Metrics.CallsTotal.WithLabelValues("abstract", "error")))
}

func TestRecordCircuitState(t *testing.T) {
	registry := NewRegistry()

	registry.Metrics.RecordCircuitState("opencage", "open")
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.Metrics.CircuitBreakerState.WithLabelValues("opencage")))

	registry.Metrics.RecordCircuitState("opencage", "half-open")
	assert.Equal(t, float64(2),
		testutil.ToFloat64(registry.Metrics.CircuitBreakerState.WithLabelValues("opencage")))

	// Unknown state names leave the gauge untouched
	registry.Metrics.RecordCircuitState("opencage", "bogus")
	assert.Equal(t, float64(2),
		testutil.ToFloat64(registry.Metrics.CircuitBreakerState.WithLabelValues("opencage")))
}

func TestRecordProviderHealth(t *testing.T) {
	registry := NewRegistry()

	registry.Metrics.RecordProviderHealth("opencorporates", "UP")
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.Metrics.ProviderHealth.WithLabelValues("opencorporates")))

	registry.Metrics.RecordProviderHealth("opencorporates", "DOWN")
	assert.Equal(t, float64(0),
		testutil.ToFloat64(registry.Metrics.ProviderHealth.WithLabelValues("opencorporates")))
}

func TestRecordHTTPRequestStatusClasses(t *testing.T) {
	registry := NewRegistry()

	registry.Metrics.RecordHTTPRequest(http.MethodGet, "/api/v1/geocode", 200, time.Millisecond)
	registry.Metrics.RecordHTTPRequest(http.MethodGet, "/api/v1/geocode", 404, time.Millisecond)
	registry.Metrics.RecordHTTPRequest(http.MethodGet, "/api/v1/geocode", 503, time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		registry.Metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/geocode", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		registry.Metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/geocode", "4xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		registry.Metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/geocode", "5xx")))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge"})

	require.NoError(t, registry.Register("test", gauge))
	assert.Error(t, registry.Register("test", gauge))

	assert.True(t, registry.Unregister("test"))
	assert.False(t, registry.Unregister("test"))
}

func TestScrapeExposesCoreFamilies(t *testing.T) {
	registry := NewRegistry()

	registry.Metrics.RecordCall("opencage", "success", 120*time.Millisecond)
	registry.Metrics.RecordCacheHit("opencage")
	registry.Metrics.RecordCacheMiss("opencage")

	srv := httptest.NewServer(registry.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body := new(strings.Builder)
	_, err = io.Copy(body, resp.Body)
	require.NoError(t, err)

	assert.Contains(t, body.String(), `vuege_provider_calls_total{outcome="success",provider="opencage"} 1`)
	assert.Contains(t, body.String(), "vuege_provider_call_duration_seconds")
	assert.Contains(t, body.String(), `vuege_cache_hits_total{provider="opencage"} 1`)
	assert.Contains(t, body.String(), `vuege_cache_misses_total{provider="opencage"} 1`)
}
