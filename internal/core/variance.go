package core

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// VarianceCell is the actual/budget pair of one metric in one period.
type VarianceCell struct {
	Metric string
	Actual decimal.NullDecimal
	Budget decimal.NullDecimal
}

// VarianceRow is one period of the variance table, cells in catalog order.
type VarianceRow struct {
	Month string
	Cells []VarianceCell
}

// MarshalJSON flattens the row to Month plus M_Actual / M_Budget keys.
func (r VarianceRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 1+2*len(r.Cells))
	out[MonthColumn] = r.Month
	for _, c := range r.Cells {
		out[c.Metric+ActualSuffix] = c.Actual
		out[c.Metric+BudgetSuffix] = c.Budget
	}
	return json.Marshal(out)
}

// VarianceRows expands every record over the caller's catalog. The catalog
// is never inferred from the data so table columns stay stable.
func (e *Engine) VarianceRows(records []MergedRecord, catalog []string) []VarianceRow {
	rows := make([]VarianceRow, 0, len(records))
	for _, rec := range records {
		row := VarianceRow{Month: rec.Month, Cells: make([]VarianceCell, 0, len(catalog))}
		for _, metric := range catalog {
			row.Cells = append(row.Cells, VarianceCell{
				Metric: metric,
				Actual: e.actual(rec, metric),
				Budget: e.budget(rec, metric),
			})
		}
		rows = append(rows, row)
	}
	return rows
}
