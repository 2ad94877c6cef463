package memory

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"findash/internal/core"
	ports "findash/internal/sheets"
	"findash/internal/sheets/csvfile"
)

// Store keeps raw rows per source in process memory.
type Store struct {
	mu   sync.RWMutex
	rows map[core.Source][]core.Row
}

var (
	_ ports.RowReader = (*Store)(nil)
	_ ports.RowWriter = (*Store)(nil)
)

func New(actual, budget []core.Row) *Store {
	return &Store{rows: map[core.Source][]core.Row{
		core.SourceActuals: cloneRows(actual),
		core.SourceBudget:  cloneRows(budget),
	}}
}

// NewFromDir seeds the store from actuals.csv and budget.csv in dir.
// Missing or unreadable files leave that source empty.
func NewFromDir(dir string) *Store {
	s := New(nil, nil)
	for _, src := range core.Sources() {
		path := filepath.Join(dir, src.String()+".csv")
		rows, err := csvfile.ReadFile(path)
		if err != nil {
			slog.Debug("Memory seed skipped", "source", src, "path", path, "error", err)
			continue
		}
		s.rows[src] = rows
	}
	return s
}

func (s *Store) ReadRows(_ context.Context, source core.Source) ([]core.Row, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.rows[source]), nil
}

// ReplaceRows swaps the rows of source wholesale.
func (s *Store) ReplaceRows(_ context.Context, source core.Source, rows []core.Row) error {
	if err := source.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.rows[source] = cloneRows(rows)
	s.mu.Unlock()
	return nil
}

func cloneRows(in []core.Row) []core.Row {
	if in == nil {
		return nil
	}
	out := make([]core.Row, len(in))
	for i, r := range in {
		c := make(core.Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}
