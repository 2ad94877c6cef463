package core

import "github.com/shopspring/decimal"

// Series is a full-history metric series aligned to Labels.
type Series struct {
	Metric string                `json:"metric"`
	Labels []string              `json:"labels"`
	Actual []decimal.NullDecimal `json:"actual"`
	Budget []decimal.NullDecimal `json:"budget,omitempty"`
}

// Labels returns the month keys of records in order.
func Labels(records []MergedRecord) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.Month
	}
	return out
}

// Series returns the actual and budget history of metric.
func (e *Engine) Series(records []MergedRecord, metric string) Series {
	s := Series{
		Metric: metric,
		Labels: Labels(records),
		Actual: make([]decimal.NullDecimal, len(records)),
		Budget: make([]decimal.NullDecimal, len(records)),
	}
	for i, rec := range records {
		s.Actual[i] = e.actual(rec, metric)
		s.Budget[i] = e.budget(rec, metric)
	}
	return s
}

// ActualSeries returns actual-only series for several metrics over the
// same labels.
func (e *Engine) ActualSeries(records []MergedRecord, metrics []string) []Series {
	labels := Labels(records)
	out := make([]Series, 0, len(metrics))
	for _, m := range metrics {
		s := Series{Metric: m, Labels: labels, Actual: make([]decimal.NullDecimal, len(records))}
		for i, rec := range records {
			s.Actual[i] = e.actual(rec, m)
		}
		out = append(out, s)
	}
	return out
}
