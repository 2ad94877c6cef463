package backend

import (
	"context"
	"fmt"
	"log/slog"

	"findash/internal/core"
	"findash/internal/sheets/csvfile"
	gsheet "findash/internal/sheets/google"
	"findash/internal/sheets/memory"
	"findash/internal/sheets/xlsx"
	"findash/internal/storage"
)

// Factory opens row sources.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Open returns the source described by cfg.
func (f *Factory) Open(ctx context.Context, cfg Config) (*Result, error) {
	switch cfg.Type {
	case Memory:
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		store := memory.NewFromDir(dir)
		f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dir)
		return &Result{Type: cfg.Type, Reader: store, Writer: store}, nil

	case CSV:
		f.logger.InfoContext(ctx, "Initialized csv backend", "data_directory", cfg.DataDir)
		return &Result{Type: cfg.Type, Reader: csvfile.New(cfg.DataDir)}, nil

	case XLSX:
		f.logger.InfoContext(ctx, "Initialized xlsx backend", "path", cfg.XLSXPath)
		return &Result{Type: cfg.Type, Reader: xlsx.New(cfg.XLSXPath)}, nil

	case Sheets:
		cli, err := gsheet.Dial(ctx, gsheet.Options{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			ActualsRange:  cfg.GoogleActualsRange,
			BudgetRange:   cfg.GoogleBudgetRange,
			CacheTTL:      cfg.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Google Sheets backend",
			"actuals_range", cli.Range(core.SourceActuals),
			"budget_range", cli.Range(core.SourceBudget))
		return &Result{Type: cfg.Type, Reader: cli}, nil

	case SQLite:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return &Result{Type: cfg.Type, Reader: repo, Writer: repo, Staging: repo, Cleanup: repo.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}
