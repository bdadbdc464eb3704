package memory

import (
	"context"
	"fmt"
	"sync"

	"costing/internal/core"
	"costing/internal/sheets"
)

// Store keeps exported rows in memory, one per save.
type Store struct {
	mu    sync.Mutex
	rows  [][]any
	index map[string]int
}

var _ sheets.RollupExporter = (*Store)(nil)

func New() *Store {
	return &Store{index: map[string]int{}}
}

// ExportRollup stores the row and returns a synthetic row reference.
func (s *Store) ExportRollup(_ context.Context, r core.SaveReport) (string, error) {
	if r.ID == "" {
		return "", fmt.Errorf("export rollup: save has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.index[r.ID]; ok {
		return rowRef(n), nil
	}
	s.rows = append(s.rows, sheets.RollupRow(r))
	s.index[r.ID] = len(s.rows)
	return rowRef(len(s.rows)), nil
}

// Rows returns a copy of the exported rows in export order.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

func rowRef(n int) string {
	return fmt.Sprintf("mem:%d", n)
}
