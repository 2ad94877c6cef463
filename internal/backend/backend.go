// Package backend opens the row source selected by configuration.
package backend

import (
	"fmt"
	"slices"
	"time"

	"findash/internal/config"
	"findash/internal/sheets"
	"findash/internal/storage"
)

// Type names a row source implementation.
type Type string

const (
	Memory Type = config.BackendMemory
	CSV    Type = config.BackendCSV
	XLSX   Type = config.BackendXLSX
	Sheets Type = config.BackendSheets
	SQLite Type = config.BackendSQLite
)

func Types() []Type {
	return []Type{Memory, CSV, XLSX, Sheets, SQLite}
}

func (t Type) IsValid() bool {
	return slices.Contains(Types(), t)
}

func (t Type) String() string {
	return string(t)
}

// Config carries what each adapter needs to open.
type Config struct {
	Type Type

	DataDir      string
	XLSXPath     string
	SQLiteDBPath string

	GoogleSpreadsheetID string
	GoogleActualsRange  string
	GoogleBudgetRange   string
	CacheTTL            time.Duration
}

// FromAppConfig selects DATA_BACKEND.
func FromAppConfig(c *config.Config) (Config, error) {
	return fromAppConfig(c, c.DataBackend)
}

// ImportFromAppConfig selects IMPORT_SOURCE_BACKEND, the upstream the
// worker copies into the staging store.
func ImportFromAppConfig(c *config.Config) (Config, error) {
	return fromAppConfig(c, c.ImportSourceBackend)
}

func fromAppConfig(c *config.Config, backend string) (Config, error) {
	if c == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	t := Type(backend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", backend)
	}
	return Config{
		Type:                t,
		DataDir:             c.DataDir,
		XLSXPath:            c.XLSXPath,
		SQLiteDBPath:        c.SQLiteDBPath,
		GoogleSpreadsheetID: c.GoogleSpreadsheetID,
		GoogleActualsRange:  c.GoogleActualsRange,
		GoogleBudgetRange:   c.GoogleBudgetRange,
		CacheTTL:            c.SourceCacheTTL,
	}, nil
}

// Result is an opened source plus its optional capabilities.
type Result struct {
	Type   Type
	Reader sheets.RowReader
	// Writer is set for sources that accept replacement rows.
	Writer sheets.RowWriter
	// Staging is set only for the sqlite backend.
	Staging *storage.SQLiteRepository
	Cleanup func() error
}

// Close runs Cleanup when present.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}
