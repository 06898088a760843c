package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bondalen/vuege/apiclient"
	"github.com/bondalen/vuege/pkg/cache"
	"github.com/bondalen/vuege/resilience"
)

const geocodeBody = `{
	"results": [{
		"geometry": {"lat": 55.7558, "lng": 37.6176},
		"formatted": "Red Square, 1, Moscow, Russia",
		"confidence": 9,
		"components": {
			"country": "Russia",
			"state": "Moscow",
			"city": "Moscow",
			"postcode": "109012",
			"road": "Red Square",
			"house_number": "1"
		}
	}]
}`

// testDeps wires a service against a mock upstream with fast policy
// timings and a real cache.
func testDeps(t *testing.T, handler http.HandlerFunc) Dependencies {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := apiclient.New("test", apiclient.Config{BaseURL: srv.URL, APIKey: "test-key"}, nil)
	require.NoError(t, err)

	policyCfg := resilience.DefaultConfig()
	policyCfg.RetryDelay = 5 * time.Millisecond
	policyCfg.CallTimeout = 2 * time.Second
	policy, err := resilience.New("test", policyCfg, nil)
	require.NoError(t, err)

	resultCache, err := cache.New[*CallResult](context.Background(),
		cache.Config{Enabled: true, MaxSize: 100, TTL: time.Minute, CleanupInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = resultCache.Close() })

	return Dependencies{Client: client, Policy: policy, Cache: resultCache}
}

func TestGeocode_Success(t *testing.T) {
	var gotQuery atomic.Value
	deps := testDeps(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query().Encode())
		_, _ = w.Write([]byte(geocodeBody))
	})
	g := NewGeocoding(deps)

	result := g.Geocode(context.Background(), "Moscow, Red Square, 1")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "Moscow, Red Square, 1", result.OriginalInput)
	assert.Equal(t, 55.7558, result.Payload["latitude"])
	assert.Equal(t, 37.6176, result.Payload["longitude"])
	assert.Equal(t, "Red Square, 1, Moscow, Russia", result.Payload["formatted_address"])
	assert.Equal(t, "Russia", result.Payload["country"])
	assert.Equal(t, 9, result.Confidence)
	assert.Equal(t, "OpenCage Data API", result.Source)
	assert.Empty(t, result.ErrorMessage)
	assert.False(t, result.Cached)
	assert.False(t, result.CreatedAt.IsZero())
	assert.GreaterOrEqual(t, result.ResponseTimeMs, int64(0))

	query := gotQuery.Load().(string)
	assert.Contains(t, query, "q=Moscow%2C+Red+Square%2C+1")
	assert.Contains(t, query, "key=test-key")
	assert.Contains(t, query, "limit=1")
	assert.Contains(t, query, "no_annotations=1")
}

func TestGeocode_UpstreamFailureRetriedThreeTimes(t *testing.T) {
	var calls int32
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	g := NewGeocoding(deps)

	result := g.Geocode(context.Background(), "Moscow")

	assert.Equal(t, StatusError, result.Status)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "initial attempt plus 2 retries")
}

func TestGeocode_RetryThenSucceed(t *testing.T) {
	var calls int32
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(geocodeBody))
	})
	g := NewGeocoding(deps)

	result := g.Geocode(context.Background(), "Moscow")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGeocode_CacheHitSkipsUpstream(t *testing.T) {
	var calls int32
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(geocodeBody))
	})
	g := NewGeocoding(deps)

	first := g.Geocode(context.Background(), "Moscow")
	second := g.Geocode(context.Background(), "Moscow")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "identical calls within TTL hit upstream once")
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Payload["latitude"], second.Payload["latitude"])
}

func TestGeocode_ParseFailure(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected": "shape"}`))
	})
	g := NewGeocoding(deps)

	result := g.Geocode(context.Background(), "Moscow")

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "could not parse provider response", result.ErrorMessage)
}

func TestGeocode_EmptyAddress(t *testing.T) {
	var calls int32
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	g := NewGeocoding(deps)

	result := g.Geocode(context.Background(), "")

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestReverseGeocode_Success(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geocodeBody))
	})
	g := NewGeocoding(deps)

	result := g.ReverseGeocode(context.Background(), 55.7558, 37.6176)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "55.7558,37.6176", result.OriginalInput)
}

func TestReverseGeocode_InvalidCoordinates(t *testing.T) {
	var calls int32
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	g := NewGeocoding(deps)

	tests := []struct {
		name     string
		lat, lon float64
	}{
		{"latitude too high", 91, 0},
		{"latitude too low", -91, 0},
		{"longitude too high", 0, 181},
		{"longitude too low", 0, -181},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := g.ReverseGeocode(context.Background(), tt.lat, tt.lon)
			assert.Equal(t, StatusError, result.Status)
			assert.NotEmpty(t, result.ErrorMessage)
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "input errors never reach the provider")
}

func TestValidateEmail_Valid(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/validation/email", r.URL.Path)
		assert.Equal(t, "a@b.com", r.URL.Query().Get("email"))
		_, _ = w.Write([]byte(`{"is_valid": true, "confidence": 95, "email": "a@b.com"}`))
	})
	v := NewValidation(deps)

	result := v.ValidateEmail(context.Background(), "a@b.com")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, true, result.Payload["is_valid"])
	assert.Equal(t, "a@b.com", result.Payload["formatted"])
	assert.Equal(t, 95, result.Confidence)
	assert.Equal(t, "Abstract API", result.Source)
}

func TestValidateEmail_Invalid(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"is_valid": false, "confidence": 10, "email": "nope"}`))
	})
	v := NewValidation(deps)

	result := v.ValidateEmail(context.Background(), "nope")

	assert.Equal(t, StatusInvalid, result.Status)
	assert.Equal(t, false, result.Payload["is_valid"])
	assert.Empty(t, result.ErrorMessage, "a negative validation is not an error")
}

func TestValidatePhone(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/validation/phone", r.URL.Path)
		_, _ = w.Write([]byte(`{"is_valid": true, "confidence": 88, "phone": "+74951234567"}`))
	})
	v := NewValidation(deps)

	result := v.ValidatePhone(context.Background(), "+7 495 123-45-67")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "+74951234567", result.Payload["formatted"])
}

func TestValidateAddress(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/validation/address", r.URL.Path)
		_, _ = w.Write([]byte(`{"is_valid": true, "confidence": 70, "formatted_address": "Red Square, 1"}`))
	})
	v := NewValidation(deps)

	result := v.ValidateAddress(context.Background(), "red square 1")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "Red Square, 1", result.Payload["formatted"])
}

func TestValidation_CacheKeysAreKindScoped(t *testing.T) {
	var calls int32
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"is_valid": true, "confidence": 50}`))
	})
	v := NewValidation(deps)

	// Same raw value through two different validators must not share a
	// cache entry
	_ = v.ValidateEmail(context.Background(), "x")
	_ = v.ValidatePhone(context.Background(), "x")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEnrichCompany_Success(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0.4/companies/search", r.URL.Path)
		assert.Equal(t, "Acme", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("api_token"))
		_, _ = w.Write([]byte(`{
			"results": [{
				"company": {
					"name": "ACME LTD",
					"company_number": "012345",
					"jurisdiction_code": "gb",
					"incorporation_date": "1990-01-02",
					"company_type": "ltd",
					"status": "Active"
				}
			}]
		}`))
	})
	e := NewEnrichment(deps)

	result := e.EnrichCompany(context.Background(), "Acme")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "ACME LTD", result.Payload["name"])
	assert.Equal(t, "012345", result.Payload["company_number"])
	assert.Equal(t, "gb", result.Payload["jurisdiction_code"])
	assert.Equal(t, 85, result.Confidence)
	assert.Equal(t, "OpenCorporates API", result.Source)
}

func TestEnrichByRegistrationID(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"company": {"name": "7707083893", "company_number": "1027700132195"}}]}`))
	})
	e := NewEnrichment(deps)

	result := e.EnrichByRegistrationID(context.Background(), "7707083893")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 90, result.Confidence)
	assert.Equal(t, "registration", result.Payload["enrichment_type"])
}

func TestEnrich_NoMatch(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"other": 1}]}`))
	})
	e := NewEnrichment(deps)

	result := e.EnrichCompany(context.Background(), "No Such Company")

	assert.Equal(t, StatusNotFound, result.Status)
}

func TestCallResult_StatusInvariant(t *testing.T) {
	// status == ERROR iff errorMessage is non-empty, across outcome kinds
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geocodeBody))
	})
	g := NewGeocoding(deps)

	success := g.Geocode(context.Background(), "Moscow")
	assert.NotEqual(t, StatusError, success.Status)
	assert.Empty(t, success.ErrorMessage)

	failure := g.ReverseGeocode(context.Background(), 200, 0)
	assert.Equal(t, StatusError, failure.Status)
	assert.NotEmpty(t, failure.ErrorMessage)
}

func TestCallResult_IsSuccess(t *testing.T) {
	usable := map[Status]bool{
		StatusSuccess:  true,
		StatusPartial:  true,
		StatusInvalid:  false,
		StatusNotFound: false,
		StatusError:    false,
	}
	for status, want := range usable {
		result := &CallResult{Status: status}
		assert.Equal(t, want, result.IsSuccess(), "status %s", status)
	}
}

type recordingStats struct {
	successes int32
	errors    int32
}

func (r *recordingStats) RecordSuccess(string) { atomic.AddInt32(&r.successes, 1) }
func (r *recordingStats) RecordError(string)   { atomic.AddInt32(&r.errors, 1) }

func TestProductionCallsFeedStatistics(t *testing.T) {
	var calls int32
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(geocodeBody))
	})
	stats := &recordingStats{}
	deps.Stats = stats
	g := NewGeocoding(deps)

	_ = g.Geocode(context.Background(), "failing")
	_ = g.Geocode(context.Background(), "working")

	assert.Equal(t, int32(1), atomic.LoadInt32(&stats.errors))
	assert.Equal(t, int32(1), atomic.LoadInt32(&stats.successes))
}

type observingStats struct {
	recordingStats
	timedCalls  int32
	lastElapsed int64 // nanoseconds
	cacheHits   int32
	cacheMisses int32
}

func (o *observingStats) RecordCall(_, _ string, duration time.Duration) {
	atomic.AddInt32(&o.timedCalls, 1)
	atomic.StoreInt64(&o.lastElapsed, int64(duration))
}

func (o *observingStats) RecordCacheHit(string)  { atomic.AddInt32(&o.cacheHits, 1) }
func (o *observingStats) RecordCacheMiss(string) { atomic.AddInt32(&o.cacheMisses, 1) }

func TestFanOutRoutesTimedOutcomes(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(geocodeBody))
	})
	plain := &recordingStats{}
	observer := &observingStats{}
	deps.Stats = FanOut(plain, observer)
	g := NewGeocoding(deps)

	_ = g.Geocode(context.Background(), "Moscow")
	_ = g.Geocode(context.Background(), "Moscow") // served from cache

	assert.Equal(t, int32(1), atomic.LoadInt32(&plain.successes))
	assert.Equal(t, int32(1), atomic.LoadInt32(&observer.timedCalls),
		"observers get the timed event instead of the bare counter")
	assert.Equal(t, int32(0), atomic.LoadInt32(&observer.recordingStats.successes),
		"one outcome must not be recorded twice on the same recorder")
	assert.Greater(t, atomic.LoadInt64(&observer.lastElapsed), int64(0))
	assert.Equal(t, int32(1), atomic.LoadInt32(&observer.cacheMisses))
	assert.Equal(t, int32(1), atomic.LoadInt32(&observer.cacheHits))
}

func TestHealthCheck(t *testing.T) {
	deps := testDeps(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geocode/v1/json", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	g := NewGeocoding(deps)

	status, elapsed, err := g.HealthCheck(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
}
