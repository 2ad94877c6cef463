package sheets

import (
	"context"
	"sort"
	"strings"

	"findash/internal/core"
)

// Ports for inbound row sources.
type (
	// RowReader returns the raw parsed rows of one source table.
	RowReader interface {
		ReadRows(ctx context.Context, source core.Source) ([]core.Row, error)
	}

	// RowWriter replaces the stored rows of one source table.
	RowWriter interface {
		ReplaceRows(ctx context.Context, source core.Source, rows []core.Row) error
	}

	// CacheInvalidator is implemented by readers that keep raw rows in memory.
	CacheInvalidator interface {
		InvalidateCache()
	}
)

// RowsFromTable converts a header-first string matrix into rows.
// Header cells are trimmed and blank header columns are dropped; short
// rows are padded with empty values so every row carries every column.
func RowsFromTable(values [][]string) []core.Row {
	if len(values) == 0 {
		return nil
	}
	header := make([]string, len(values[0]))
	for i, h := range values[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	rows := make([]core.Row, 0, len(values)-1)
	for _, line := range values[1:] {
		row := make(core.Row, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(line) {
				row[col] = line[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// TableFromRows is the inverse of RowsFromTable using an explicit header.
func TableFromRows(header []string, rows []core.Row) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, append([]string(nil), header...))
	for _, r := range rows {
		line := make([]string, len(header))
		for i, col := range header {
			line[i] = r[col]
		}
		out = append(out, line)
	}
	return out
}

// Header returns the column names of rows with Month first and the rest
// in first-seen order across rows, sorted within each row for stability.
func Header(rows []core.Row) []string {
	seen := map[string]struct{}{core.MonthColumn: {}}
	header := []string{core.MonthColumn}
	for _, r := range rows {
		cols := make([]string, 0, len(r))
		for c := range r {
			if _, ok := seen[c]; !ok {
				cols = append(cols, c)
			}
		}
		sort.Strings(cols)
		for _, c := range cols {
			seen[c] = struct{}{}
			header = append(header, c)
		}
	}
	return header
}
