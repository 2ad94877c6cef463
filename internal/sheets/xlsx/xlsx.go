// Package xlsx reads the actuals and budget tables from a workbook.
package xlsx

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"findash/internal/core"
	ports "findash/internal/sheets"
)

// Default worksheet names per source.
const (
	ActualsSheet = "Actuals"
	BudgetSheet  = "Budget"
)

// Reader opens the workbook on every call so edits on disk are picked up.
type Reader struct {
	path   string
	sheets map[core.Source]string
}

var _ ports.RowReader = (*Reader)(nil)

func New(path string) *Reader {
	return &Reader{path: path, sheets: map[core.Source]string{
		core.SourceActuals: ActualsSheet,
		core.SourceBudget:  BudgetSheet,
	}}
}

// SheetName returns the worksheet that holds source.
func (r *Reader) SheetName(source core.Source) string {
	return r.sheets[source]
}

func (r *Reader) ReadRows(ctx context.Context, source core.Source) ([]core.Row, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", r.path, err)
	}
	defer f.Close()
	return readSheet(f, r.SheetName(source))
}

// Parse reads one worksheet from a workbook stream.
func Parse(rd io.Reader, sheet string) ([]core.Row, error) {
	f, err := excelize.OpenReader(rd)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, sheet)
}

// readSheet returns no rows when the worksheet does not exist.
func readSheet(f *excelize.File, sheet string) ([]core.Row, error) {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("lookup sheet %q: %w", sheet, err)
	}
	if idx < 0 {
		return nil, nil
	}
	values, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return ports.RowsFromTable(values), nil
}

// WriteWorkbook saves both tables into a new workbook at path, one
// worksheet per source.
func WriteWorkbook(path string, tables map[core.Source][]core.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	for _, src := range core.Sources() {
		name := New("").SheetName(src)
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet %q: %w", name, err)
		}
		rows := tables[src]
		table := ports.TableFromRows(ports.Header(rows), rows)
		for i, line := range table {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return err
			}
			vals := make([]any, len(line))
			for j, v := range line {
				vals[j] = v
			}
			if err := f.SetSheetRow(name, cell, &vals); err != nil {
				return fmt.Errorf("write %s row %d: %w", name, i+1, err)
			}
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}
