package memory

import (
	"context"
	"fmt"
	"sync"

	"claims/internal/core"
)

// Row is one exported report line.
type Row struct {
	Expense  core.Expense
	Category string
}

// Store is an in-memory report writer used in tests and local development.
type Store struct {
	mu   sync.Mutex
	rows []Row
}

func New() *Store {
	return &Store{}
}

// Append stores the row and returns a synthetic reference.
func (s *Store) Append(_ context.Context, e core.Expense, categoryName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Row{Expense: e, Category: categoryName})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
