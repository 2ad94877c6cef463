package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrAliasConflict is returned when one column name maps to two canonical metrics.
var ErrAliasConflict = errors.New("alias conflict")

// AliasSet maps a canonical metric name to the alternate column names a
// source may use for it, in lookup order.
type AliasSet map[string][]string

// Resolver reads metric values from rows using a single AliasSet.
// It is immutable after construction and safe for concurrent use.
type Resolver struct {
	aliases   map[string][]string
	canonical map[string]string
}

// NewResolver validates the alias set and indexes it both ways.
func NewResolver(aliases AliasSet) (*Resolver, error) {
	r := &Resolver{
		aliases:   make(map[string][]string, len(aliases)),
		canonical: make(map[string]string),
	}

	// Deterministic iteration so conflicts are reported the same way every time.
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || name == MonthColumn {
			return nil, fmt.Errorf("invalid canonical metric name %q", name)
		}
		r.canonical[name] = name
	}
	for _, key := range names {
		name := strings.TrimSpace(key)
		list := make([]string, 0, len(aliases[key]))
		for _, alias := range aliases[key] {
			alias = strings.TrimSpace(alias)
			if alias == "" || alias == name {
				continue
			}
			if owner, ok := r.canonical[alias]; ok && owner != name {
				return nil, fmt.Errorf("%w: %q is claimed by %q and %q", ErrAliasConflict, alias, owner, name)
			}
			r.canonical[alias] = name
			list = append(list, alias)
		}
		r.aliases[name] = list
	}
	return r, nil
}

// MustResolver is NewResolver for static alias tables known to be valid.
func MustResolver(aliases AliasSet) *Resolver {
	r, err := NewResolver(aliases)
	if err != nil {
		panic(err)
	}
	return r
}

// Canonical returns the canonical metric name for a column or alias.
// Names that are not part of the alias set are their own canonical name.
func (r *Resolver) Canonical(column string) string {
	column = strings.TrimSpace(column)
	if c, ok := r.canonical[column]; ok {
		return c
	}
	return column
}

// Aliases returns the declared aliases for a canonical metric.
func (r *Resolver) Aliases(metric string) []string {
	return append([]string(nil), r.aliases[r.Canonical(metric)]...)
}

// Resolve returns the value of metric in row, trying the canonical column
// first and then each alias in declared order. The first non-empty cell
// wins; if it is not numeric the result is Null.
func (r *Resolver) Resolve(row Row, metric string) decimal.NullDecimal {
	if row == nil {
		return Null
	}
	metric = r.Canonical(metric)
	if v, ok := lookup(row, metric); ok {
		return ParseValue(v)
	}
	for _, alias := range r.aliases[metric] {
		if v, ok := lookup(row, alias); ok {
			return ParseValue(v)
		}
	}
	return Null
}

func lookup(row Row, column string) (string, bool) {
	v, ok := row[column]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
