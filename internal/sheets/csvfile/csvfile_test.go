package csvfile

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"findash/internal/core"
)

func TestParseVariableWidth(t *testing.T) {
	in := "Month,Revenue,Total Rev\n2024-01,\"$1,000\",\n2024-02,900\n"
	rows, err := Parse(bytes.NewBufferString(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0]["Revenue"] != "$1,000" || rows[0].Month() != "2024-01" {
		t.Fatalf("row0 = %v", rows[0])
	}
	if v, ok := rows[1]["Total Rev"]; !ok || v != "" {
		t.Fatalf("short row not padded: %v", rows[1])
	}
}

func TestReaderMissingFileIsEmpty(t *testing.T) {
	r := New(t.TempDir())
	rows, err := r.ReadRows(context.Background(), core.SourceBudget)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
}

func TestReaderReadsPerSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "actuals.csv"), []byte("Month,Revenue\n2024-01,10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(dir)
	rows, err := r.ReadRows(context.Background(), core.SourceActuals)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || rows[0]["Revenue"] != "10" {
		t.Fatalf("rows = %v", rows)
	}
	if _, err := r.ReadRows(context.Background(), core.Source("forecast")); err == nil {
		t.Fatalf("expected unknown source error")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rows := []core.Row{{"Month": "2024-01", "Revenue": "1,000"}}
	if err := Write(&buf, []string{"Month", "Revenue"}, rows); err != nil {
		t.Fatal(err)
	}
	got, err := Parse(&buf)
	if err != nil || len(got) != 1 || got[0]["Revenue"] != "1,000" {
		t.Fatalf("got=%v err=%v", got, err)
	}
}
