// Command findash-report merges an actuals and a budget file and prints the
// dashboard as JSON, optionally writing the variance workbook.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"findash/internal/catalog"
	"findash/internal/config"
	"findash/internal/core"
	"findash/internal/export"
	"findash/internal/log"
	"findash/internal/services"
	"findash/internal/sheets"
	"findash/internal/sheets/csvfile"
	"findash/internal/sheets/memory"
	"findash/internal/sheets/xlsx"
	"findash/internal/storage"
)

type options struct {
	actuals  string
	budget   string
	workbook string
	catalog  string
	xlsxOut  string
	stage    string
	logLevel string
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "findash-report:", err)
		}
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("findash-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.actuals, "actuals", "", "actuals CSV file")
	fs.StringVar(&o.budget, "budget", "", "budget CSV file")
	fs.StringVar(&o.workbook, "workbook", "", "XLSX workbook with Actuals and Budget sheets (instead of -actuals/-budget)")
	fs.StringVar(&o.catalog, "catalog", "", "catalog YAML file (default: built-in)")
	fs.StringVar(&o.xlsxOut, "xlsx", "", "write the variance workbook to this path instead of printing JSON")
	fs.StringVar(&o.stage, "stage", "", "also stage the rows into this SQLite database")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.workbook == "" && o.actuals == "" && o.budget == "" {
		return o, errors.New("one of -workbook or -actuals/-budget is required")
	}
	if o.workbook != "" && (o.actuals != "" || o.budget != "") {
		return o, errors.New("-workbook cannot be combined with -actuals/-budget")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger := log.New(log.Config{
		Level:     log.ParseLevel(o.logLevel),
		Format:    "text",
		Component: log.ComponentApp,
		Output:    stderr,
	})
	log.SetDefault(logger)

	reader, err := openReader(o)
	if err != nil {
		return err
	}
	cat, err := catalog.Load(o.catalog)
	if err != nil {
		return err
	}

	if o.stage != "" {
		if err := stage(ctx, reader, o); err != nil {
			return err
		}
	}

	svc, err := services.NewDashboardService(reader, cat, nil, 0)
	if err != nil {
		return err
	}
	d, err := svc.Build(ctx)
	if errors.Is(err, core.ErrEmptyDataset) {
		return writeJSON(stdout, map[string]any{"empty": true, "message": "No data yet: both sources are empty."})
	}
	if err != nil {
		return err
	}

	if o.xlsxOut != "" {
		f, err := os.Create(o.xlsxOut)
		if err != nil {
			return fmt.Errorf("create workbook: %w", err)
		}
		if err := export.WriteVariance(f, d.Variance, d.KPIs, cat); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close workbook: %w", err)
		}
		logger.Info("Variance workbook written", "path", o.xlsxOut, log.FieldRecords, len(d.Records))
		return nil
	}
	return writeJSON(stdout, d)
}

func openReader(o options) (sheets.RowReader, error) {
	if o.workbook != "" {
		return xlsx.New(o.workbook), nil
	}
	var actual, budget []core.Row
	var err error
	if o.actuals != "" {
		if actual, err = csvfile.ReadFile(o.actuals); err != nil {
			return nil, fmt.Errorf("read actuals: %w", err)
		}
	}
	if o.budget != "" {
		if budget, err = csvfile.ReadFile(o.budget); err != nil {
			return nil, fmt.Errorf("read budget: %w", err)
		}
	}
	return memory.New(actual, budget), nil
}

// stage runs a manual import of the input into the SQLite staging store.
func stage(ctx context.Context, reader sheets.RowReader, o options) error {
	repo, err := storage.NewSQLiteRepository(o.stage)
	if err != nil {
		return err
	}
	defer repo.Close()

	name := config.BackendCSV
	if o.workbook != "" {
		name = config.BackendXLSX
	}
	imp, err := services.NewImportService(reader, repo, name, nil).Run(ctx, services.ImportRequest{
		ID:          uuid.NewString(),
		Trigger:     services.TriggerManual,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	log.FromContext(ctx).InfoContext(ctx, "Rows staged",
		log.FieldImportID, imp.ID,
		"actual_rows", imp.ActualRows,
		"budget_rows", imp.BudgetRows)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
