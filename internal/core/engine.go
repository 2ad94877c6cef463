package core

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ActualSuffix = "_Actual"
	BudgetSuffix = "_Budget"
)

// MergedRecord is one month of reconciled actual and budget values keyed
// by canonical metric name.
type MergedRecord struct {
	Month  string
	Actual map[string]decimal.NullDecimal
	Budget map[string]decimal.NullDecimal
}

// Field looks up a flattened field name such as "EBITDA_Actual".
func (m MergedRecord) Field(name string) (decimal.NullDecimal, bool) {
	switch {
	case strings.HasSuffix(name, ActualSuffix):
		v, ok := m.Actual[strings.TrimSuffix(name, ActualSuffix)]
		return v, ok
	case strings.HasSuffix(name, BudgetSuffix):
		v, ok := m.Budget[strings.TrimSuffix(name, BudgetSuffix)]
		return v, ok
	}
	return Null, false
}

// Fields flattens the record into Month plus M_Actual / M_Budget entries.
func (m MergedRecord) Fields() map[string]any {
	out := make(map[string]any, 1+len(m.Actual)+len(m.Budget))
	out[MonthColumn] = m.Month
	for k, v := range m.Actual {
		out[k+ActualSuffix] = v
	}
	for k, v := range m.Budget {
		out[k+BudgetSuffix] = v
	}
	return out
}

func (m MergedRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Fields())
}

// Duplicate records a row whose month key was already taken in its source.
type Duplicate struct {
	Source   Source `json:"source"`
	Month    string `json:"month"`
	Position int    `json:"position"`
}

// Dataset is the output of a merge.
type Dataset struct {
	Records    []MergedRecord
	Metrics    []string
	Duplicates []Duplicate
	// Skipped counts non-blank rows without a month key.
	Skipped int
}

// Engine runs the reconciliation pipeline with one alias resolver.
// It holds no mutable state.
type Engine struct {
	resolver *Resolver
}

// NewEngine returns an engine bound to the given resolver.
func NewEngine(r *Resolver) *Engine {
	if r == nil {
		r = MustResolver(nil)
	}
	return &Engine{resolver: r}
}

// Resolver exposes the alias resolver used by the engine.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

type keyedRows struct {
	order []string
	first map[string]Row
}

func (e *Engine) index(src Source, rows []Row, ds *Dataset) keyedRows {
	k := keyedRows{first: make(map[string]Row, len(rows))}
	for i, row := range rows {
		month := row.Month()
		if month == "" {
			ds.Skipped++
			continue
		}
		if _, seen := k.first[month]; seen {
			ds.Duplicates = append(ds.Duplicates, Duplicate{Source: src, Month: month, Position: i})
			continue
		}
		k.first[month] = row
		k.order = append(k.order, month)
	}
	return k
}

// Merge outer-joins actual and budget rows on the month key.
//
// Months appear in actuals order followed by budget-only months in their
// own order. Within a source the first row for a month wins. Every metric
// seen in either source (aliases folded into their canonical name) gets an
// Actual and a Budget value on every record, Null where missing.
func (e *Engine) Merge(actual, budget []Row) (Dataset, error) {
	actual = NormalizeRows(actual)
	budget = NormalizeRows(budget)

	var ds Dataset
	a := e.index(SourceActuals, actual, &ds)
	b := e.index(SourceBudget, budget, &ds)

	months := append([]string(nil), a.order...)
	for _, m := range b.order {
		if _, ok := a.first[m]; !ok {
			months = append(months, m)
		}
	}
	if len(months) == 0 {
		return ds, ErrEmptyDataset
	}

	ds.Metrics = e.metrics(actual, budget)
	ds.Records = make([]MergedRecord, 0, len(months))
	for _, month := range months {
		ar, br := a.first[month], b.first[month]
		rec := MergedRecord{
			Month:  month,
			Actual: make(map[string]decimal.NullDecimal, len(ds.Metrics)),
			Budget: make(map[string]decimal.NullDecimal, len(ds.Metrics)),
		}
		for _, metric := range ds.Metrics {
			rec.Actual[metric] = e.resolver.Resolve(ar, metric)
			rec.Budget[metric] = e.resolver.Resolve(br, metric)
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}

func (e *Engine) metrics(sets ...[]Row) []string {
	seen := map[string]struct{}{}
	for _, rows := range sets {
		for _, row := range rows {
			for col := range row {
				col = strings.TrimSpace(col)
				if col == "" || col == MonthColumn {
					continue
				}
				seen[e.resolver.Canonical(col)] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// actual returns the actual value of metric (or one of its aliases).
func (e *Engine) actual(rec MergedRecord, metric string) decimal.NullDecimal {
	return rec.Actual[e.resolver.Canonical(metric)]
}

func (e *Engine) budget(rec MergedRecord, metric string) decimal.NullDecimal {
	return rec.Budget[e.resolver.Canonical(metric)]
}
