package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

type stubFetcher struct {
	err error
}

func (s stubFetcher) FetchPage(context.Context, string, location.PageRequest) (location.Page, error) {
	return location.Page{}, s.err
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	m, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer is not a metric")
	}
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return out.GetHistogram().GetSampleCount()
}

func TestFetcher_CountsSuccessfulPages(t *testing.T) {
	provider := "test-pages"
	ok := Fetcher(provider, stubFetcher{})
	failing := Fetcher(provider, stubFetcher{err: errors.New("boom")})

	for i := 0; i < 3; i++ {
		_, _ = ok.FetchPage(context.Background(), "tok", location.PageRequest{PageSize: 1})
	}
	_, err := failing.FetchPage(context.Background(), "tok", location.PageRequest{PageSize: 1})

	if err == nil {
		t.Error("wrapped fetcher should return the underlying error")
	}
	if got := testutil.ToFloat64(PagesFetched.WithLabelValues(provider)); got != 3 {
		t.Errorf("expected 3 pages, got %v", got)
	}
}

func TestRecordRun(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind string
	}{
		{"success", nil, ""},
		{"auth", location.AuthError("p", 401, "bad token"), "auth"},
		{"network", location.NetworkError("p", errors.New("reset")), "network"},
		{"upstream", location.UpstreamError("p", 500, "oops", nil), "upstream"},
		{"unclassified", errors.New("panic: nil map"), "upstream"},
		{"timeout", fmt.Errorf("run: %w", context.DeadlineExceeded), "canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := "test-run-" + tt.name

			RecordRun(provider, 150*time.Millisecond, 7, tt.err)

			if tt.err == nil {
				if got := testutil.ToFloat64(RecordsEmitted.WithLabelValues(provider)); got != 7 {
					t.Errorf("expected 7 records, got %v", got)
				}
				if got := histogramCount(t, RunDuration.WithLabelValues(provider, "success")); got != 1 {
					t.Errorf("expected 1 successful run observation, got %d", got)
				}
				return
			}

			if got := testutil.ToFloat64(ProviderFailures.WithLabelValues(provider, tt.wantKind)); got != 1 {
				t.Errorf("expected 1 %s failure, got %v", tt.wantKind, got)
			}
			if got := testutil.ToFloat64(RecordsEmitted.WithLabelValues(provider)); got != 0 {
				t.Errorf("failed run should not count records, got %v", got)
			}
			if got := histogramCount(t, RunDuration.WithLabelValues(provider, "error")); got != 1 {
				t.Errorf("expected 1 failed run observation, got %d", got)
			}
		})
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	RecordHTTPRequest("GET", "/test/route", 502, 20*time.Millisecond)

	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/test/route", "502")); got != 1 {
		t.Errorf("expected 1 request, got %v", got)
	}
}

func TestMetricsLint(t *testing.T) {
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer,
		"flaneur_pages_fetched_total", "flaneur_records_emitted_total",
		"flaneur_provider_failures_total", "flaneur_run_duration_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, p := range problems {
		t.Errorf("metric %s: %s", p.Metric, p.Text)
	}
}
