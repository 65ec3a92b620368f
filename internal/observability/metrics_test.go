package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dunefetch/dunefetch/internal/config"
)

func TestObserveRemoteRequestLabelsStatus(t *testing.T) {
	before := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("execute", "401"))
	ObserveRemoteRequest("execute", http.StatusUnauthorized, 15*time.Millisecond)
	after := testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("execute", "401"))
	if after-before != 1 {
		t.Fatalf("execute/401 delta = %v", after-before)
	}

	before = testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("status", "error"))
	ObserveRemoteRequest("status", 0, time.Millisecond)
	after = testutil.ToFloat64(remoteRequestsTotal.WithLabelValues("status", "error"))
	if after-before != 1 {
		t.Fatalf("status/error delta = %v", after-before)
	}
}

func TestSetResultRowsClampsNegative(t *testing.T) {
	SetResultRows(-3)
	if got := testutil.ToFloat64(resultRows); got != 0 {
		t.Fatalf("result rows = %v", got)
	}
	SetResultRows(7)
	if got := testutil.ToFloat64(resultRows); got != 7 {
		t.Fatalf("result rows = %v", got)
	}
}

func TestObserveExportWrite(t *testing.T) {
	before := testutil.ToFloat64(exportWritesTotal.WithLabelValues("parquet", "error"))
	ObserveExportWrite("parquet", errors.New("boom"))
	if got := testutil.ToFloat64(exportWritesTotal.WithLabelValues("parquet", "error")); got-before != 1 {
		t.Fatalf("parquet/error delta = %v", got-before)
	}
}

func TestPushMetricsSkipsWithoutURL(t *testing.T) {
	if err := PushMetrics(context.Background(), config.MetricsConfig{}); err != nil {
		t.Fatalf("PushMetrics() error = %v", err)
	}
}

func TestPushMetricsPutsToJobPath(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	IncrementPollAttempts()
	if err := PushMetrics(context.Background(), config.MetricsConfig{PushURL: srv.URL, JobName: "nightly"}); err != nil {
		t.Fatalf("PushMetrics() error = %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/metrics/job/nightly" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestPushMetricsReportsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := PushMetrics(context.Background(), config.MetricsConfig{PushURL: srv.URL}); err == nil {
		t.Fatal("expected push error")
	}
}
