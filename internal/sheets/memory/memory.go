// Package memory is an in-process exporter used in development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/sheets"
)

var _ sheets.ExpenseExporter = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	loc  *time.Location
	rows [][]any
}

func New(loc *time.Location) *Store {
	return &Store{loc: loc}
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(e.ID); i >= 0 {
		return ref(i), nil
	}
	s.rows = append(s.rows, sheets.Row(e, s.loc))
	return ref(len(s.rows) - 1), nil
}

func (s *Store) Delete(_ context.Context, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(expenseID)
	if i < 0 {
		return sheets.ErrRowNotFound
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

// Rows returns a copy of the exported rows in sheet order.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

func (s *Store) indexLocked(expenseID string) int {
	for i, r := range s.rows {
		if r[0] == expenseID {
			return i
		}
	}
	return -1
}

func ref(i int) string {
	return fmt.Sprintf("mem:%d", i+1)
}
