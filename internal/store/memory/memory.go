// Package memory is an in-process document store used for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]core.User
	expenses map[string]core.Expense
	accounts map[string]store.Account
}

var _ store.Backend = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]core.User),
		expenses: make(map[string]core.Expense),
		accounts: make(map[string]store.Account),
	}
}

func (s *Store) GetUser(_ context.Context, userID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetExpense(_ context.Context, userID, expenseID string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[expenseID]
	if !ok || e.UserID != userID {
		return core.Expense{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0)
	for _, e := range s.expenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

type tx struct {
	store.TxWrites
	s *Store
}

// GetUser runs with the store lock already held by RunTransaction.
func (t *tx) GetUser(_ context.Context, userID string) (core.User, error) {
	if err := t.CheckRead(); err != nil {
		return core.User{}, err
	}
	u, ok := t.s.users[userID]
	if !ok {
		return core.User{}, store.ErrNotFound
	}
	return u, nil
}

// RunTransaction holds the store lock for the whole callback, so memory
// transactions never conflict.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{s: s}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range t.Expenses {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, e := range t.Expenses {
		s.expenses[e.ID] = e
	}
	for _, u := range t.Users {
		s.users[u.ID] = u
	}
	return nil
}

type batch struct {
	store.BatchOps
	s *Store
}

func (s *Store) NewBatch() store.Batch {
	return &batch{s: s}
}

func (b *batch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every delete first so a failure leaves nothing applied.
	deleted := make(map[string]bool)
	for _, op := range b.Ops {
		if !op.IsDelete() {
			continue
		}
		e, ok := s.expenses[op.ExpenseID]
		if !ok || e.UserID != op.UserID || deleted[op.ExpenseID] {
			return store.ErrNotFound
		}
		deleted[op.ExpenseID] = true
	}
	for _, op := range b.Ops {
		if op.IsDelete() {
			delete(s.expenses, op.ExpenseID)
			continue
		}
		u := s.users[op.UserID]
		u.ID = op.UserID
		u.TotalExpense = u.TotalExpense.Add(op.Delta)
		s.users[op.UserID] = u
	}
	return nil
}

func (s *Store) CreateAccount(_ context.Context, a store.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, ok := s.accounts[key]; ok {
		return store.ErrAccountExists
	}
	s.accounts[key] = a
	return nil
}

func (s *Store) AccountByEmail(_ context.Context, email string) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
