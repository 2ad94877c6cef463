// Package csvfile reads the actuals and budget tables from CSV exports.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"findash/internal/core"
	ports "findash/internal/sheets"
)

// Reader serves rows from <dir>/actuals.csv and <dir>/budget.csv.
type Reader struct {
	dir string
}

var _ ports.RowReader = (*Reader)(nil)

func New(dir string) *Reader {
	return &Reader{dir: dir}
}

// Path returns the file backing source.
func (r *Reader) Path(source core.Source) string {
	return filepath.Join(r.dir, source.String()+".csv")
}

// ReadRows parses the file for source. A missing file yields no rows.
func (r *Reader) ReadRows(ctx context.Context, source core.Source) ([]core.Row, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := ReadFile(r.Path(source))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

// ReadFile opens and parses a single CSV file.
func ReadFile(path string) ([]core.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}

// Parse reads a header-first CSV stream into rows. Records may have a
// variable number of fields.
func Parse(r io.Reader) ([]core.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var values [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		values = append(values, rec)
	}
	return ports.RowsFromTable(values), nil
}

// Write encodes rows as CSV with the given header.
func Write(w io.Writer, header []string, rows []core.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(ports.TableFromRows(header, rows)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
