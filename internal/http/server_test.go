package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"findash/internal/amqp"
	"findash/internal/core"
	"findash/internal/export"
	"findash/internal/metrics"
	"findash/internal/middleware/ratelimit"
	"findash/internal/services"
	"findash/internal/sheets"
	"findash/internal/sheets/memory"
)

type failingReader struct{}

func (failingReader) ReadRows(context.Context, core.Source) ([]core.Row, error) {
	return nil, errors.New("sheet offline")
}

type fakePublisher struct {
	msgs []*amqp.ImportMessage
	err  error
}

func (f *fakePublisher) PublishImport(_ context.Context, msg *amqp.ImportMessage) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func sampleStore() *memory.Store {
	return memory.New(
		[]core.Row{
			{"Month": "2024-01", "Revenue": "100", "EBITDA": "10"},
			{"Month": "2024-02", "Total Rev": "$120", "EBITDA": "12"},
		},
		[]core.Row{
			{"Month": "2024-01", "Total Rev": "90", "EBITDA": "8"},
			{"Month": "2024-02", "Total Rev": "100", "EBITDA": "10"},
		},
	)
}

func newTestServer(t *testing.T, reader sheets.RowReader, opts Options) *Server {
	t.Helper()
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	svc, err := services.NewDashboardService(reader, nil, opts.Metrics, time.Second)
	require.NoError(t, err)
	opts.Dashboard = svc
	if opts.RateLimit.RequestsPerSecond == 0 {
		opts.RateLimit = ratelimit.Config{RequestsPerSecond: 1000, Burst: 1000}
	}
	srv, err := NewServer(":0", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, r)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestNewServerRequiresDashboard(t *testing.T) {
	_, err := NewServer(":0", Options{})
	require.Error(t, err)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, sampleStore(), Options{})

	rr := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])

	rr = do(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, "not_configured", body["checks"].(map[string]any)["imports"])
}

func TestReadyFailsWhenCheckFails(t *testing.T) {
	srv := newTestServer(t, sampleStore(), Options{
		Checks: map[string]ReadinessCheck{
			"staging": func(context.Context) error { return errors.New("database is locked") },
		},
	})
	rr := do(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "not_ready", body["status"])
	assert.Contains(t, body["checks"].(map[string]any)["staging"], "database is locked")
}

func TestDashboard(t *testing.T) {
	srv := newTestServer(t, sampleStore(), Options{})

	rr := do(t, srv, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	body := decode(t, rr)
	assert.Equal(t, []any{"2024-01", "2024-02"}, body["months"])
	kpis := body["kpis"].([]any)
	require.NotEmpty(t, kpis)
	first := kpis[0].(map[string]any)
	assert.Equal(t, "Total Rev", first["metric"])
	assert.Equal(t, 120.0, first["actual"])
	assert.Equal(t, "$120", first["actual_fmt"])
}

func TestEmptyDatasetIsNotAnError(t *testing.T) {
	srv := newTestServer(t, memory.New(nil, nil), Options{})

	for _, path := range []string{"/api/dashboard", "/api/kpis", "/api/variance", "/api/series/EBITDA"} {
		rr := do(t, srv, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rr.Code, path)
		body := decode(t, rr)
		assert.Equal(t, true, body["empty"], path)
		assert.NotEmpty(t, body["message"], path)
	}
}

func TestSourceFailureIsBadGateway(t *testing.T) {
	srv := newTestServer(t, failingReader{}, Options{})

	rr := do(t, srv, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "data source unavailable", body["error"])
	assert.Equal(t, rr.Header().Get("X-Request-ID"), body["request_id"])
}

func TestKPIs(t *testing.T) {
	srv := newTestServer(t, sampleStore(), Options{})

	rr := do(t, srv, http.MethodGet, "/api/kpis?metric=EBITDA&metric=Revenue", "")
	require.Equal(t, http.StatusOK, rr.Code)
	kpis := decode(t, rr)["kpis"].([]any)
	require.Len(t, kpis, 2)
	assert.Equal(t, "EBITDA", kpis[0].(map[string]any)["metric"])

	rr = do(t, srv, http.MethodGet, "/api/kpis/EBITDA", "")
	require.Equal(t, http.StatusOK, rr.Code)
	kpi := decode(t, rr)
	assert.Equal(t, "2024-02", kpi["month"])
	assert.Equal(t, 12.0, kpi["actual"])
	assert.Equal(t, 10.0, kpi["budget"])
	assert.Equal(t, 2.0, kpi["variance"])
	assert.Equal(t, 20.0, kpi["variance_pct"])
	assert.Len(t, kpi["trailing"], 2)

	rr = do(t, srv, http.MethodGet, "/api/kpis/Unknown", "")
	require.Equal(t, http.StatusOK, rr.Code)
	kpi = decode(t, rr)
	assert.Nil(t, kpi["actual"])
	assert.Equal(t, core.Missing, kpi["actual_fmt"])
}

func TestVarianceAndSeries(t *testing.T) {
	srv := newTestServer(t, sampleStore(), Options{})

	rr := do(t, srv, http.MethodGet, "/api/variance", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rows := decode(t, rr)["rows"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, 100.0, rows[0].(map[string]any)["Total Rev_Actual"])
	assert.Equal(t, 90.0, rows[0].(map[string]any)["Total Rev_Budget"])

	rr = do(t, srv, http.MethodGet, "/api/series/Revenue", "")
	require.Equal(t, http.StatusOK, rr.Code)
	series := decode(t, rr)
	assert.Equal(t, []any{"2024-01", "2024-02"}, series["labels"])
	assert.Equal(t, []any{100.0, 120.0}, series["actual"])
	assert.Equal(t, []any{90.0, 100.0}, series["budget"])
}

func TestVarianceXLSX(t *testing.T) {
	srv := newTestServer(t, sampleStore(), Options{})

	rr := do(t, srv, http.MethodGet, "/api/variance.xlsx", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "variance-2024-02.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), export.VarianceSheet)
	assert.Contains(t, f.GetSheetList(), export.KPISheet)
}

func TestCreateImport(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(t, sampleStore(), Options{Publisher: pub})

	rr := do(t, srv, http.MethodPost, "/api/imports", `{"sources":["budget"]}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, []core.Source{core.SourceBudget}, pub.msgs[0].Sources)
	assert.Equal(t, pub.msgs[0].ID, decode(t, rr)["id"])
	assert.Equal(t, "/api/imports/"+pub.msgs[0].ID, rr.Header().Get("Location"))

	rr = do(t, srv, http.MethodPost, "/api/imports", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, pub.msgs[1].Sources, "empty body imports every source")
}

func TestCreateImportErrors(t *testing.T) {
	srv := newTestServer(t, sampleStore(), Options{})
	rr := do(t, srv, http.MethodPost, "/api/imports", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	pub := &fakePublisher{}
	srv = newTestServer(t, sampleStore(), Options{Publisher: pub})
	rr = do(t, srv, http.MethodPost, "/api/imports", `{"sources":["forecast"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, srv, http.MethodPost, "/api/imports", `{"sources":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, srv, http.MethodPost, "/api/imports", strings.Repeat(" ", maxImportBody+1)+"{}")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Empty(t, pub.msgs)

	pub.err = amqp.ErrCircuitOpen
	rr = do(t, srv, http.MethodPost, "/api/imports", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = do(t, srv, http.MethodGet, "/api/imports", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRateLimit(t *testing.T) {
	m := metrics.New()
	srv := newTestServer(t, sampleStore(), Options{
		Metrics:   m,
		RateLimit: ratelimit.Config{RequestsPerSecond: 0.5, Burst: 1},
	})

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/kpis", "").Code)
	rr := do(t, srv, http.MethodGet, "/api/kpis", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))

	// probes are never limited
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	srv := newTestServer(t, sampleStore(), Options{Metrics: m})

	do(t, srv, http.MethodGet, "/api/kpis", "")
	do(t, srv, http.MethodGet, "/missing", "")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET /api/kpis", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("unmatched", "404")))

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "findash_http_requests_total")
}
