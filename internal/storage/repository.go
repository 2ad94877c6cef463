package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"findash/internal/core"
	ports "findash/internal/sheets"
)

// Import describes one completed staging run.
type Import struct {
	ID          string    `json:"id"`
	Backend     string    `json:"backend"`
	Trigger     string    `json:"trigger"`
	ActualRows  int       `json:"actual_rows"`
	BudgetRows  int       `json:"budget_rows"`
	RequestedAt time.Time `json:"requested_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// SQLiteRepository stages raw source rows so the dashboard can be served
// without hitting the upstream spreadsheet on every request.
type SQLiteRepository struct {
	db *sql.DB
}

var (
	_ ports.RowReader = (*SQLiteRepository)(nil)
	_ ports.RowWriter = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ReadRows returns the staged rows of source in their original order.
func (r *SQLiteRepository) ReadRows(ctx context.Context, source core.Source) ([]core.Row, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	rs, err := r.db.QueryContext(ctx,
		`SELECT cells FROM staged_rows WHERE source = ? ORDER BY position`, source.String())
	if err != nil {
		return nil, fmt.Errorf("query staged %s rows: %w", source, err)
	}
	defer rs.Close()

	var rows []core.Row
	for rs.Next() {
		var cells string
		if err := rs.Scan(&cells); err != nil {
			return nil, fmt.Errorf("scan staged row: %w", err)
		}
		var row core.Row
		if err := json.Unmarshal([]byte(cells), &row); err != nil {
			return nil, fmt.Errorf("decode staged row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate staged %s rows: %w", source, err)
	}
	return rows, nil
}

// ReplaceRows swaps the staged rows of a single source.
func (r *SQLiteRepository) ReplaceRows(ctx context.Context, source core.Source, rows []core.Row) error {
	if err := source.Validate(); err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return replaceRows(ctx, tx, source, rows, nil)
	})
}

// ReplaceAll atomically stages both sources and records imp.
// Sources missing from tables are cleared.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, imp Import, tables map[core.Source][]core.Row) error {
	if imp.ID == "" {
		return errors.New("import id is required")
	}
	if imp.CompletedAt.IsZero() {
		imp.CompletedAt = time.Now()
	}
	imp.CompletedAt = imp.CompletedAt.UTC()
	imp.ActualRows = len(tables[core.SourceActuals])
	imp.BudgetRows = len(tables[core.SourceBudget])

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO imports (id, backend, triggered_by, actual_rows, budget_rows, requested_at, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			imp.ID, imp.Backend, imp.Trigger, imp.ActualRows, imp.BudgetRows,
			nullTime(imp.RequestedAt), imp.CompletedAt)
		if err != nil {
			return fmt.Errorf("record import: %w", err)
		}
		for _, src := range core.Sources() {
			if err := replaceRows(ctx, tx, src, tables[src], &imp.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Rows staged to SQLite",
		"import_id", imp.ID,
		"backend", imp.Backend,
		"actual_rows", imp.ActualRows,
		"budget_rows", imp.BudgetRows)
	return nil
}

// LastImport returns the most recent import, if any.
func (r *SQLiteRepository) LastImport(ctx context.Context) (Import, bool, error) {
	var (
		imp       Import
		requested sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, backend, triggered_by, actual_rows, budget_rows, requested_at, completed_at
		 FROM imports ORDER BY completed_at DESC, rowid DESC LIMIT 1`).
		Scan(&imp.ID, &imp.Backend, &imp.Trigger, &imp.ActualRows, &imp.BudgetRows, &requested, &imp.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Import{}, false, nil
	}
	if err != nil {
		return Import{}, false, fmt.Errorf("get last import: %w", err)
	}
	if requested.Valid {
		imp.RequestedAt = requested.Time
	}
	return imp, true, nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func replaceRows(ctx context.Context, tx *sql.Tx, source core.Source, rows []core.Row, importID *string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM staged_rows WHERE source = ?`, source.String()); err != nil {
		return fmt.Errorf("clear staged %s rows: %w", source, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO staged_rows (source, position, cells, import_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare staged insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		cells, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode %s row %d: %w", source, i, err)
		}
		if _, err := stmt.ExecContext(ctx, source.String(), i, string(cells), importID); err != nil {
			return fmt.Errorf("insert %s row %d: %w", source, i, err)
		}
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
