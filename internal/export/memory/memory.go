// Package memory is an export.Writer that keeps reports in memory. The CLI
// uses it for -dry-run; tests use it to inspect what would be written.
package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/export"
)

var _ export.Writer = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	tables map[core.Month][][]any
	writes int
}

func New() *Store {
	return &Store{tables: map[core.Month][][]any{}}
}

// WriteReport replaces the table stored for the report's month.
func (s *Store) WriteReport(_ context.Context, r export.Report) (string, error) {
	rows := export.Rows(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[r.Month] = rows
	s.writes++
	return fmt.Sprintf("mem:%s:%d", r.Month, s.writes), nil
}

// Table returns the rows last written for m.
func (s *Store) Table(m core.Month) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[m]
	return rows, ok
}
