package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"findash/internal/catalog"
	"findash/internal/core"
	"findash/internal/metrics"
	"findash/internal/sheets"
)

// ErrSourceUnavailable wraps failures reading either row source.
var ErrSourceUnavailable = errors.New("source unavailable")

// KPI is a snapshot plus its derived variance and display strings.
type KPI struct {
	core.KPISnapshot
	Kind               string              `json:"kind"`
	Variance           decimal.NullDecimal `json:"variance"`
	VariancePercent    decimal.NullDecimal `json:"variance_pct"`
	ActualFmt          string              `json:"actual_fmt"`
	BudgetFmt          string              `json:"budget_fmt"`
	VarianceFmt        string              `json:"variance_fmt"`
	VariancePercentFmt string              `json:"variance_pct_fmt"`
}

// VarianceTable is the Actual vs Budget table over the variance catalog.
type VarianceTable struct {
	Metrics []string           `json:"metrics"`
	Rows    []core.VarianceRow `json:"rows"`
}

// Dashboard is everything the UI renders from one merge.
type Dashboard struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Months      []string            `json:"months"`
	Metrics     []string            `json:"metrics"`
	Records     []core.MergedRecord `json:"records"`
	KPIs        []KPI               `json:"kpis"`
	Variance    VarianceTable       `json:"variance"`
	Categories  []core.Series       `json:"categories"`
	Trend       []core.Series       `json:"trend"`
	Charts      []core.Series       `json:"charts"`
	Pairs       [][]core.Series     `json:"pairs"`
	Duplicates  []core.Duplicate    `json:"duplicates"`
	Skipped     int                 `json:"skipped"`
}

// DashboardService fetches both sources and runs them through the engine.
type DashboardService struct {
	reader  sheets.RowReader
	engine  *core.Engine
	catalog *catalog.Catalog
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
}

// NewDashboardService wires a reader to the engine. A nil catalog uses the
// built-in one; m may be nil; a zero timeout disables the fetch deadline.
func NewDashboardService(reader sheets.RowReader, cat *catalog.Catalog, m *metrics.Metrics, timeout time.Duration) (*DashboardService, error) {
	if reader == nil {
		return nil, errors.New("row reader is required")
	}
	if cat == nil {
		cat = catalog.Default()
	}
	resolver, err := cat.Resolver()
	if err != nil {
		return nil, fmt.Errorf("build resolver: %w", err)
	}
	return &DashboardService{
		reader:  reader,
		engine:  core.NewEngine(resolver),
		catalog: cat,
		metrics: m,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

func (s *DashboardService) Catalog() *catalog.Catalog {
	return s.catalog
}

// Fetch reads actuals and budget concurrently.
func (s *DashboardService) Fetch(ctx context.Context) (actual, budget []core.Row, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	read := func(src core.Source, dst *[]core.Row) func() error {
		return func() error {
			start := time.Now()
			rows, err := s.reader.ReadRows(gctx, src)
			if s.metrics != nil {
				s.metrics.ObserveFetch(src.String(), err, time.Since(start))
			}
			if err != nil {
				return fmt.Errorf("%w: read %s: %w", ErrSourceUnavailable, src, err)
			}
			*dst = rows
			return nil
		}
	}
	g.Go(read(core.SourceActuals, &actual))
	g.Go(read(core.SourceBudget, &budget))
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return actual, budget, nil
}

// Dataset fetches and merges. core.ErrEmptyDataset is returned unwrapped
// so callers can branch on it.
func (s *DashboardService) Dataset(ctx context.Context) (core.Dataset, error) {
	actual, budget, err := s.Fetch(ctx)
	if err != nil {
		s.fail(ctx, "source", err)
		return core.Dataset{}, err
	}
	ds, err := s.engine.Merge(actual, budget)
	s.observe(ctx, ds)
	if err != nil {
		if errors.Is(err, core.ErrEmptyDataset) {
			s.fail(ctx, "empty", err)
		}
		return ds, err
	}
	return ds, nil
}

// Build produces the full dashboard.
func (s *DashboardService) Build(ctx context.Context) (Dashboard, error) {
	start := time.Now()
	ds, err := s.Dataset(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	kpis, err := s.kpis(ds.Records, s.catalog.Headline)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{
		GeneratedAt: s.now().UTC(),
		Months:      core.Labels(ds.Records),
		Metrics:     ds.Metrics,
		Records:     ds.Records,
		KPIs:        kpis,
		Variance:    s.variance(ds.Records),
		Categories:  s.series(ds.Records, s.catalog.Categories),
		Trend:       s.engine.ActualSeries(ds.Records, s.catalog.Trend),
		Charts:      s.series(ds.Records, s.catalog.Charts),
		Pairs:       s.pairs(ds.Records),
		Duplicates:  ds.Duplicates,
		Skipped:     ds.Skipped,
	}
	if s.metrics != nil {
		s.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	}
	slog.InfoContext(ctx, "Dashboard built",
		"records", len(d.Records),
		"metrics", len(d.Metrics),
		"kpis", len(d.KPIs),
		"duration_ms", time.Since(start).Milliseconds())
	return d, nil
}

// KPIs returns the snapshots for metrics, or the headline list when empty.
func (s *DashboardService) KPIs(ctx context.Context, metrics ...string) ([]KPI, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		metrics = s.catalog.Headline
	}
	return s.kpis(ds.Records, metrics)
}

// Variance returns the variance table over the catalog.
func (s *DashboardService) Variance(ctx context.Context) (VarianceTable, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return VarianceTable{}, err
	}
	return s.variance(ds.Records), nil
}

// Series returns the Actual vs Budget history of metric.
func (s *DashboardService) Series(ctx context.Context, metric string) (core.Series, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return core.Series{}, err
	}
	return s.engine.Series(ds.Records, metric), nil
}

func (s *DashboardService) kpis(records []core.MergedRecord, metrics []string) ([]KPI, error) {
	snaps, err := s.engine.SnapshotAll(records, metrics)
	if err != nil {
		return nil, err
	}
	out := make([]KPI, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, s.kpi(snap))
	}
	return out, nil
}

func (s *DashboardService) kpi(snap core.KPISnapshot) KPI {
	variance := snap.Variance()
	pct := snap.VariancePercent()
	return KPI{
		KPISnapshot:        snap,
		Kind:               s.catalog.Kind(snap.Metric),
		Variance:           variance,
		VariancePercent:    pct,
		ActualFmt:          s.catalog.Format(snap.Metric, snap.Actual),
		BudgetFmt:          s.catalog.Format(snap.Metric, snap.Budget),
		VarianceFmt:        s.catalog.Format(snap.Metric, variance),
		VariancePercentFmt: core.FormatPercent(pct),
	}
}

func (s *DashboardService) variance(records []core.MergedRecord) VarianceTable {
	return VarianceTable{
		Metrics: s.catalog.Variance,
		Rows:    s.engine.VarianceRows(records, s.catalog.Variance),
	}
}

func (s *DashboardService) series(records []core.MergedRecord, metrics []string) []core.Series {
	out := make([]core.Series, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, s.engine.Series(records, m))
	}
	return out
}

func (s *DashboardService) pairs(records []core.MergedRecord) [][]core.Series {
	out := make([][]core.Series, 0, len(s.catalog.Pairs))
	for _, p := range s.catalog.Pairs {
		out = append(out, s.engine.ActualSeries(records, p))
	}
	return out
}

func (s *DashboardService) observe(ctx context.Context, ds core.Dataset) {
	for _, d := range ds.Duplicates {
		slog.WarnContext(ctx, "Duplicate month dropped",
			"source", d.Source,
			"month", d.Month,
			"position", d.Position)
	}
	if ds.Skipped > 0 {
		slog.WarnContext(ctx, "Rows without month skipped", "skipped", ds.Skipped)
	}
	if s.metrics == nil {
		return
	}
	s.metrics.Records.Set(float64(len(ds.Records)))
	for _, d := range ds.Duplicates {
		s.metrics.Duplicates.WithLabelValues(d.Source.String()).Inc()
	}
	s.metrics.SkippedRows.Add(float64(ds.Skipped))
}

func (s *DashboardService) fail(ctx context.Context, reason string, err error) {
	if s.metrics != nil {
		s.metrics.BuildFailures.WithLabelValues(reason).Inc()
	}
	if reason == "empty" {
		slog.InfoContext(ctx, "No data to display", "error", err)
		return
	}
	slog.ErrorContext(ctx, "Dashboard sources failed", "error", err)
}
