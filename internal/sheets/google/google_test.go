package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"findash/internal/core"
)

// fakeSheets serves Values.Get for the Actuals and Budget ranges.
func fakeSheets(t *testing.T, calls *int32) *gsheet.Service {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		var values [][]any
		switch {
		case strings.Contains(r.URL.Path, "Actuals"):
			values = [][]any{{"Month", "Revenue"}, {"2024-01", "$1,000"}, {"2024-02", 1200}}
		case strings.Contains(r.URL.Path, "Budget"):
			values = [][]any{{"Month", "Total Rev"}, {"2024-01", "900"}}
		default:
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"majorDimension": "ROWS", "values": values})
	}))
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestReadRowsParsesRanges(t *testing.T) {
	var calls int32
	c, err := New(fakeSheets(t, &calls), Options{SpreadsheetID: "sheet"})
	if err != nil {
		t.Fatal(err)
	}
	rows, err := c.ReadRows(context.Background(), core.SourceActuals)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 || rows[0]["Revenue"] != "$1,000" || rows[1]["Revenue"] != "1200" {
		t.Fatalf("rows = %v", rows)
	}
	budget, err := c.ReadRows(context.Background(), core.SourceBudget)
	if err != nil || len(budget) != 1 || budget[0]["Total Rev"] != "900" {
		t.Fatalf("budget=%v err=%v", budget, err)
	}
}

func TestReadRowsCachesUntilInvalidated(t *testing.T) {
	var calls int32
	c, err := New(fakeSheets(t, &calls), Options{SpreadsheetID: "sheet", CacheTTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.ReadRows(ctx, core.SourceActuals); err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("api calls = %d, want 1", got)
	}
	c.InvalidateCache()
	if _, err := c.ReadRows(ctx, core.SourceActuals); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("api calls after invalidate = %d, want 2", got)
	}
}

func TestReadRowsAPIError(t *testing.T) {
	var calls int32
	c, err := New(fakeSheets(t, &calls), Options{SpreadsheetID: "sheet", ActualsRange: "Missing!A:B"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ReadRows(context.Background(), core.SourceActuals); err == nil {
		t.Fatal("expected api error")
	}
}

func TestNewDefaults(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("expected missing spreadsheet id error")
	}
	c, err := New(nil, Options{SpreadsheetID: " id "})
	if err != nil {
		t.Fatal(err)
	}
	if c.Range(core.SourceActuals) != DefaultActualsRange || c.Range(core.SourceBudget) != DefaultBudgetRange {
		t.Errorf("unexpected ranges: %v", c.ranges)
	}
	if _, err := c.ReadRows(context.Background(), core.SourceActuals); err == nil {
		t.Error("expected error with nil service")
	}
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_BadTTL(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("SOURCE_CACHE_TTL", "soon")
	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Fatal("expected ttl parse error")
	}
}

func TestLoadCredentialsFromFile(t *testing.T) {
	path := t.TempDir() + "/sa.json"
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", path)
	b, err := loadCredentials(context.Background())
	if err != nil || !strings.Contains(string(b), "service_account") {
		t.Fatalf("b=%s err=%v", b, err)
	}
}

func TestToStrings(t *testing.T) {
	got := toStrings([]interface{}{" a ", 12, 1.5, nil})
	want := []string{"a", "12", "1.5", "<nil>"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("toStrings[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
