// Package metrics exposes Prometheus instrumentation for provider runs and the HTTP API.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

var (
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flaneur_pages_fetched_total",
			Help: "Total number of provider pages fetched",
		},
		[]string{"provider"},
	)

	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flaneur_records_emitted_total",
			Help: "Total number of location records produced by completed runs",
		},
		[]string{"provider"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flaneur_provider_failures_total",
			Help: "Total number of failed provider runs by error kind",
		},
		[]string{"provider", "kind"}, // "auth", "upstream", "network", "canceled"
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flaneur_run_duration_seconds",
			Help:    "Duration of provider pagination runs in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "outcome"}, // "success", "error"
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flaneur_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flaneur_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordRun records the outcome of one provider run.
func RecordRun(provider string, duration time.Duration, records int, err error) {
	if err != nil {
		RunDuration.WithLabelValues(provider, "error").Observe(duration.Seconds())
		ProviderFailures.WithLabelValues(provider, failureKind(err)).Inc()
		return
	}
	RunDuration.WithLabelValues(provider, "success").Observe(duration.Seconds())
	RecordsEmitted.WithLabelValues(provider).Add(float64(records))
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, location.ErrAuth):
		return string(location.KindAuth)
	case errors.Is(err, location.ErrNetwork):
		return string(location.KindNetwork)
	default:
		return string(location.KindUpstream)
	}
}

// Fetcher counts every page successfully fetched through f.
func Fetcher(provider string, f location.Fetcher) location.Fetcher {
	return &countingFetcher{provider: provider, next: f}
}

type countingFetcher struct {
	provider string
	next     location.Fetcher
}

func (c *countingFetcher) FetchPage(ctx context.Context, token string, req location.PageRequest) (location.Page, error) {
	page, err := c.next.FetchPage(ctx, token, req)
	if err == nil {
		PagesFetched.WithLabelValues(c.provider).Inc()
	}
	return page, err
}
