package core

import "github.com/shopspring/decimal"

// TrailingWindow is the number of periods in a KPI trend.
const TrailingWindow = 12

var hundred = decimal.NewFromInt(100)

// Point is one period of a metric series.
type Point struct {
	Month string              `json:"month"`
	Value decimal.NullDecimal `json:"value"`
}

// KPISnapshot is the latest-period view of a headline metric.
type KPISnapshot struct {
	Metric   string              `json:"metric"`
	Month    string              `json:"month"`
	Actual   decimal.NullDecimal `json:"actual"`
	Budget   decimal.NullDecimal `json:"budget"`
	Trailing []Point             `json:"trailing"`
}

// Variance is actual minus budget, Null if either side is missing.
func (k KPISnapshot) Variance() decimal.NullDecimal {
	if !k.Actual.Valid || !k.Budget.Valid {
		return Null
	}
	return NewValue(k.Actual.Decimal.Sub(k.Budget.Decimal))
}

// VariancePercent is the variance relative to |budget|, in percentage
// points. Null when either side is missing or the budget is zero.
func (k KPISnapshot) VariancePercent() decimal.NullDecimal {
	v := k.Variance()
	if !v.Valid || k.Budget.Decimal.IsZero() {
		return Null
	}
	return NewValue(v.Decimal.Div(k.Budget.Decimal.Abs()).Mul(hundred).Round(2))
}

// Snapshot builds the KPI view of metric from the last record and the
// trailing min(12, len(records)) actual values.
func (e *Engine) Snapshot(records []MergedRecord, metric string) (KPISnapshot, error) {
	if len(records) == 0 {
		return KPISnapshot{}, ErrEmptyDataset
	}
	last := records[len(records)-1]

	start := len(records) - TrailingWindow
	if start < 0 {
		start = 0
	}
	trailing := make([]Point, 0, len(records)-start)
	for _, rec := range records[start:] {
		trailing = append(trailing, Point{Month: rec.Month, Value: e.actual(rec, metric)})
	}

	return KPISnapshot{
		Metric:   metric,
		Month:    last.Month,
		Actual:   e.actual(last, metric),
		Budget:   e.budget(last, metric),
		Trailing: trailing,
	}, nil
}

// SnapshotAll builds one snapshot per metric, in the given order.
func (e *Engine) SnapshotAll(records []MergedRecord, metrics []string) ([]KPISnapshot, error) {
	out := make([]KPISnapshot, 0, len(metrics))
	for _, m := range metrics {
		s, err := e.Snapshot(records, m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
