package core

import (
	"errors"
	"sort"
	"strings"
)

// MonthColumn is the join key column present in every source row.
const MonthColumn = "Month"

// Source identifies which of the two input tables a row set came from.
type Source string

const (
	SourceActuals Source = "actuals"
	SourceBudget  Source = "budget"
)

var (
	// ErrEmptyDataset is returned when no usable rows remain after normalization.
	ErrEmptyDataset = errors.New("empty dataset")
	// ErrUnknownSource is returned for a Source other than actuals or budget.
	ErrUnknownSource = errors.New("unknown source")
)

// Sources lists the sources in the order they are joined.
func Sources() []Source {
	return []Source{SourceActuals, SourceBudget}
}

func (s Source) String() string {
	return string(s)
}

// Validate reports ErrUnknownSource for unsupported values.
func (s Source) Validate() error {
	switch s {
	case SourceActuals, SourceBudget:
		return nil
	default:
		return ErrUnknownSource
	}
}

// Row is one parsed line of a source table, keyed by column name.
type Row map[string]string

// Month returns the trimmed month key of the row.
func (r Row) Month() string {
	return strings.TrimSpace(r[MonthColumn])
}

// IsBlank reports whether every field of the row is empty after trimming.
func (r Row) IsBlank() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// NormalizeRows drops blank rows and keeps the rest in input order.
// Column names are trimmed. When names collide after trimming, a non-blank
// value under the exact name wins, then padded names in sorted order.
// Values are left as strings; numeric coercion happens at lookup time.
func NormalizeRows(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.IsBlank() {
			continue
		}
		out = append(out, trimKeys(r))
	}
	return out
}

func trimKeys(r Row) Row {
	padded := make([]string, 0)
	clean := make(Row, len(r))
	for k, v := range r {
		switch name := strings.TrimSpace(k); {
		case name == "":
		case name == k:
			clean[k] = v
		default:
			padded = append(padded, k)
		}
	}
	sort.Strings(padded)
	for _, k := range padded {
		name := strings.TrimSpace(k)
		if cur, ok := clean[name]; ok && strings.TrimSpace(cur) != "" {
			continue
		}
		clean[name] = r[k]
	}
	return clean
}
