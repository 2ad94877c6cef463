package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"findash/internal/core"
	"findash/internal/export"
	"findash/internal/storage"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func inputs(t *testing.T) (string, string, string) {
	dir := t.TempDir()
	actuals := writeFile(t, dir, "actuals.csv", "Month,Revenue,EBITDA\n2024-01,\"1,000\",100\n2024-02,1200,(20)\n")
	budget := writeFile(t, dir, "budget.csv", "Month,Total Rev,EBITDA\n2024-01,900,90\n2024-02,1000,50\n")
	return dir, actuals, budget
}

func TestRunPrintsDashboard(t *testing.T) {
	_, actuals, budget := inputs(t)
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"-actuals", actuals, "-budget", budget}, &stdout, &stderr))

	var got map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got), stdout.String())
	assert.Equal(t, []any{"2024-01", "2024-02"}, got["months"])
	kpis := got["kpis"].([]any)
	first := kpis[0].(map[string]any)
	assert.Equal(t, "Total Rev", first["metric"])
	assert.Equal(t, "$1,200", first["actual_fmt"])
}

func TestRunWritesWorkbook(t *testing.T) {
	dir, actuals, budget := inputs(t)
	out := filepath.Join(dir, "variance.xlsx")
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"-actuals", actuals, "-budget", budget, "-xlsx", out}, &stdout, &stderr))
	assert.Empty(t, stdout.String())

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), export.VarianceSheet)
}

func TestRunStagesRows(t *testing.T) {
	dir, actuals, budget := inputs(t)
	db := filepath.Join(dir, "staging.db")
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"-actuals", actuals, "-budget", budget, "-stage", db}, &stdout, &stderr))

	repo, err := storage.NewSQLiteRepository(db)
	require.NoError(t, err)
	defer repo.Close()
	rows, err := repo.ReadRows(context.Background(), core.SourceBudget)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	imp, ok, err := repo.LastImport(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "manual", imp.Trigger)
	assert.Equal(t, "csv", imp.Backend)
}

func TestRunEmptyInput(t *testing.T) {
	dir := t.TempDir()
	actuals := writeFile(t, dir, "actuals.csv", "Month,Revenue\n")
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"-actuals", actuals}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), `"empty": true`)
}

func TestParseFlagsErrors(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags(nil, &stderr)
	assert.Error(t, err)

	_, err = parseFlags([]string{"-workbook", "a.xlsx", "-actuals", "a.csv"}, &stderr)
	assert.Error(t, err)

	_, err = parseFlags([]string{"-unknown"}, &stderr)
	assert.Error(t, err)

	err = run(context.Background(), []string{"-actuals", "/does/not/exist.csv"}, &stderr, &stderr)
	assert.Error(t, err)
}
