package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveHelpers(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/dashboard", 200, 10*time.Millisecond)
	m.ObserveHTTP("/api/dashboard", 200, 20*time.Millisecond)
	m.ObserveImport("schedule", nil)
	m.ObserveImport("schedule", errors.New("boom"))
	m.Duplicates.WithLabelValues("actuals").Add(2)

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/dashboard", "200")); got != 2 {
		t.Errorf("http requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Imports.WithLabelValues("schedule", "error")); got != 1 {
		t.Errorf("failed imports = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Duplicates.WithLabelValues("actuals")); got != 2 {
		t.Errorf("duplicates = %v, want 2", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Records.Set(14)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "findash_merged_records 14") {
		t.Fatalf("metrics output missing gauge:\n%s", body)
	}
}
