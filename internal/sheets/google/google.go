package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	gsheet "google.golang.org/api/sheets/v4"

	"findash/internal/cache"
	"findash/internal/core"
	ports "findash/internal/sheets"
)

// Default A1 ranges; the first row of each range is the header.
const (
	DefaultActualsRange = "Actuals!A:ZZ"
	DefaultBudgetRange  = "Budget!A:ZZ"
	DefaultCacheTTL     = 5 * time.Minute
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ranges        map[core.Source]string
	rows          *cache.LRU[[]core.Row]
}

// Ensure interface conformance
var (
	_ ports.RowReader        = (*Client)(nil)
	_ ports.CacheInvalidator = (*Client)(nil)
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	SpreadsheetID string
	ActualsRange  string
	BudgetRange   string
	CacheTTL      time.Duration
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.ActualsRange == "" {
		opts.ActualsRange = DefaultActualsRange
	}
	if opts.BudgetRange == "" {
		opts.BudgetRange = DefaultBudgetRange
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		ranges: map[core.Source]string{
			core.SourceActuals: opts.ActualsRange,
			core.SourceBudget:  opts.BudgetRange,
		},
		rows: cache.NewLRU[[]core.Row](len(core.Sources()), opts.CacheTTL),
	}, nil
}

// NewFromEnv creates a Sheets client using environment variables and a
// service account.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_ACTUALS_RANGE, GOOGLE_BUDGET_RANGE, SOURCE_CACHE_TTL.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	ttl := DefaultCacheTTL
	if v := strings.TrimSpace(os.Getenv("SOURCE_CACHE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse SOURCE_CACHE_TTL: %w", err)
		}
		ttl = d
	}

	return Dial(ctx, Options{
		SpreadsheetID: spreadsheetID,
		ActualsRange:  strings.TrimSpace(os.Getenv("GOOGLE_ACTUALS_RANGE")),
		BudgetRange:   strings.TrimSpace(os.Getenv("GOOGLE_BUDGET_RANGE")),
		CacheTTL:      ttl,
	})
}

// Dial builds the Sheets service from service account credentials in the
// environment and wraps it with opts.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, opts)
}

// Range returns the A1 range read for source.
func (c *Client) Range(source core.Source) string {
	return c.ranges[source]
}

// ReadRows fetches the range for source, serving from cache while fresh.
func (c *Client) ReadRows(ctx context.Context, source core.Source) ([]core.Row, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if rows, ok := c.rows.Get(source.String()); ok {
		return rows, nil
	}
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	rng := c.Range(source)
	start := time.Now()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	rows := ports.RowsFromTable(toTable(resp.Values))
	c.rows.Set(source.String(), rows)
	slog.DebugContext(ctx, "Sheet range fetched",
		"source", source,
		"range", rng,
		"rows", len(rows),
		"duration_ms", time.Since(start).Milliseconds())
	return rows, nil
}

// InvalidateCache forces the next ReadRows of every source to hit the API.
func (c *Client) InvalidateCache() {
	c.rows.Purge()
}

// CleanExpired lets a cache janitor sweep this client.
func (c *Client) CleanExpired() int {
	return c.rows.CleanExpired()
}

func toTable(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = toStrings(row)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
