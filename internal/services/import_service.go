package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"findash/internal/core"
	"findash/internal/metrics"
	"findash/internal/sheets"
	"findash/internal/storage"
)

// Import triggers.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerQueue    = "queue"
	TriggerManual   = "manual"
)

// Stager persists a full import atomically.
type Stager interface {
	sheets.RowReader
	ReplaceAll(ctx context.Context, imp storage.Import, tables map[core.Source][]core.Row) error
}

// ImportRequest asks for a copy of some sources from upstream to staging.
type ImportRequest struct {
	ID          string
	Trigger     string
	Sources     []core.Source
	RequestedAt time.Time
}

// ImportService copies upstream rows into the staging store. Runs are
// serialized so a scheduled and a queued import never interleave.
type ImportService struct {
	upstream sheets.RowReader
	staging  Stager
	backend  string
	metrics  *metrics.Metrics

	mu sync.Mutex
}

func NewImportService(upstream sheets.RowReader, staging Stager, backend string, m *metrics.Metrics) *ImportService {
	return &ImportService{upstream: upstream, staging: staging, backend: backend, metrics: m}
}

// Run executes req. Sources not requested keep their currently staged rows.
func (s *ImportService) Run(ctx context.Context, req ImportRequest) (storage.Import, error) {
	imp, err := s.run(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveImport(req.Trigger, err)
	}
	return imp, err
}

func (s *ImportService) run(ctx context.Context, req ImportRequest) (storage.Import, error) {
	if req.ID == "" {
		return storage.Import{}, errors.New("import id is required")
	}
	sources := req.Sources
	if len(sources) == 0 {
		sources = core.Sources()
	}
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return storage.Import{}, fmt.Errorf("import %s: %w", req.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if inv, ok := s.upstream.(sheets.CacheInvalidator); ok {
		inv.InvalidateCache()
	}

	tables := make(map[core.Source][]core.Row, len(core.Sources()))
	for _, src := range core.Sources() {
		if slices.Contains(sources, src) {
			rows, err := s.upstream.ReadRows(ctx, src)
			if err != nil {
				return storage.Import{}, fmt.Errorf("read upstream %s: %w", src, err)
			}
			tables[src] = core.NormalizeRows(rows)
			continue
		}
		rows, err := s.staging.ReadRows(ctx, src)
		if err != nil {
			return storage.Import{}, fmt.Errorf("read staged %s: %w", src, err)
		}
		tables[src] = rows
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}
	imp := storage.Import{
		ID:          req.ID,
		Backend:     s.backend,
		Trigger:     trigger,
		RequestedAt: req.RequestedAt,
	}
	if err := s.staging.ReplaceAll(ctx, imp, tables); err != nil {
		return storage.Import{}, fmt.Errorf("stage import %s: %w", req.ID, err)
	}
	imp.ActualRows = len(tables[core.SourceActuals])
	imp.BudgetRows = len(tables[core.SourceBudget])

	slog.InfoContext(ctx, "Import completed",
		"import_id", imp.ID,
		"trigger", imp.Trigger,
		"sources", sources,
		"actual_rows", imp.ActualRows,
		"budget_rows", imp.BudgetRows)
	return imp, nil
}
