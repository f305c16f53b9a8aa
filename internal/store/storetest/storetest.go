// Package storetest is a conformance suite shared by the store backends.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) store.Backend

// Run exercises the document store contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Backend)
	}{
		{"UserRoundTrip", testUserRoundTrip},
		{"TransactionCommitsAllWrites", testTransactionCommitsAllWrites},
		{"TransactionErrorAppliesNothing", testTransactionErrorAppliesNothing},
		{"TransactionReadAfterWrite", testTransactionReadAfterWrite},
		{"ListExpensesOrderAndOwner", testListExpensesOrderAndOwner},
		{"BatchDeleteAndIncrement", testBatchDeleteAndIncrement},
		{"BatchMissingExpenseFailsWhole", testBatchMissingExpenseFailsWhole},
		{"BatchWrongOwnerFails", testBatchWrongOwnerFails},
		{"IncrementCreatesMissingUser", testIncrementCreatesMissingUser},
		{"ConcurrentTransactions", testConcurrentTransactions},
		{"Accounts", testAccounts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// Day returns a deterministic timestamp, truncated to the second so every
// backend can round-trip it exactly.
func Day(day, hour int) time.Time {
	return time.Date(2025, time.January, day, hour, 0, 0, 0, time.UTC)
}

func newExpense(userID, name string, cents int64, at time.Time) core.Expense {
	return core.Expense{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		Amount: core.Money{Cents: cents},
		Date:   at,
	}
}

// addExpense stores e and bumps the cached total the way the ledger does.
func addExpense(ctx context.Context, s store.DocumentStore, e core.Expense) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, e.UserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		u.ID = e.UserID
		u.TotalExpense = u.TotalExpense.Add(e.Amount)
		tx.CreateExpense(e)
		tx.SetUser(u)
		return nil
	})
}

func mustTotal(t *testing.T, s store.Reader, userID string, want int64) {
	t.Helper()
	u, err := s.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUser(%q): %v", userID, err)
	}
	if u.TotalExpense.Cents != want {
		t.Fatalf("total for %q = %d, want %d", userID, u.TotalExpense.Cents, want)
	}
}

func testUserRoundTrip(t *testing.T, s store.Backend) {
	ctx := context.Background()
	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetUser missing: err = %v, want ErrNotFound", err)
	}
	if err := s.CreateUser(ctx, core.User{ID: "u1"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	mustTotal(t, s, "u1", 0)
}

func testTransactionCommitsAllWrites(t *testing.T, s store.Backend) {
	ctx := context.Background()
	if err := s.CreateUser(ctx, core.User{ID: "u1"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	e := newExpense("u1", "Coffee", 250, Day(2, 9))
	if err := addExpense(ctx, s, e); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	got, err := s.GetExpense(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.Name != "Coffee" || got.Amount.Cents != 250 || !got.Date.Equal(e.Date) {
		t.Fatalf("unexpected expense: %+v", got)
	}
	mustTotal(t, s, "u1", 250)
}

func testTransactionErrorAppliesNothing(t *testing.T, s store.Backend) {
	ctx := context.Background()
	if err := s.CreateUser(ctx, core.User{ID: "u1"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	boom := errors.New("boom")
	e := newExpense("u1", "Coffee", 250, Day(2, 9))
	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		tx.CreateExpense(e)
		tx.SetUser(core.User{ID: "u1", TotalExpense: core.Money{Cents: 250}})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := s.GetExpense(ctx, "u1", e.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expense visible after failed transaction: err = %v", err)
	}
	mustTotal(t, s, "u1", 0)
}

func testTransactionReadAfterWrite(t *testing.T, s store.Backend) {
	ctx := context.Background()
	err := s.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		tx.SetUser(core.User{ID: "u1"})
		_, err := tx.GetUser(ctx, "u1")
		return err
	})
	if !errors.Is(err, store.ErrReadAfterWrite) {
		t.Fatalf("err = %v, want ErrReadAfterWrite", err)
	}
}

func testListExpensesOrderAndOwner(t *testing.T, s store.Backend) {
	ctx := context.Background()
	older := newExpense("u1", "Book", 999, Day(1, 18))
	newer := newExpense("u1", "Lunch", 1200, Day(2, 13))
	other := newExpense("u2", "Taxi", 1500, Day(3, 8))
	for _, e := range []core.Expense{older, newer, other} {
		if err := addExpense(ctx, s, e); err != nil {
			t.Fatalf("add %s: %v", e.Name, err)
		}
	}

	list, err := s.ListExpenses(ctx, "u1")
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 expenses for u1, got %d", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("expected newest first, got %q then %q", list[0].Name, list[1].Name)
	}
	if _, err := s.GetExpense(ctx, "u1", other.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetExpense across owners: err = %v, want ErrNotFound", err)
	}

	empty, err := s.ListExpenses(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("ListExpenses(nobody) = %v, %v", empty, err)
	}
}

func testBatchDeleteAndIncrement(t *testing.T, s store.Backend) {
	ctx := context.Background()
	keep := newExpense("u1", "Keep", 300, Day(1, 9))
	drop := newExpense("u1", "Drop", 450, Day(2, 9))
	for _, e := range []core.Expense{keep, drop} {
		if err := addExpense(ctx, s, e); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	b := s.NewBatch()
	b.DeleteExpense("u1", drop.ID)
	b.IncrementTotal("u1", drop.Amount.Neg())
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	list, err := s.ListExpenses(ctx, "u1")
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Fatalf("expected only %q to remain, got %+v", keep.ID, list)
	}
	mustTotal(t, s, "u1", 300)
}

func testBatchMissingExpenseFailsWhole(t *testing.T, s store.Backend) {
	ctx := context.Background()
	e := newExpense("u1", "Coffee", 250, Day(2, 9))
	if err := addExpense(ctx, s, e); err != nil {
		t.Fatalf("add: %v", err)
	}

	b := s.NewBatch()
	b.DeleteExpense("u1", uuid.NewString())
	b.IncrementTotal("u1", core.Money{Cents: -250})
	if err := b.Commit(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Commit err = %v, want ErrNotFound", err)
	}
	mustTotal(t, s, "u1", 250)
}

func testBatchWrongOwnerFails(t *testing.T, s store.Backend) {
	ctx := context.Background()
	e := newExpense("u1", "Coffee", 250, Day(2, 9))
	if err := addExpense(ctx, s, e); err != nil {
		t.Fatalf("add: %v", err)
	}

	b := s.NewBatch()
	b.DeleteExpense("u2", e.ID)
	b.IncrementTotal("u2", e.Amount.Neg())
	if err := b.Commit(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Commit err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetExpense(ctx, "u1", e.ID); err != nil {
		t.Fatalf("expense removed by another user: %v", err)
	}
	mustTotal(t, s, "u1", 250)
}

func testIncrementCreatesMissingUser(t *testing.T, s store.Backend) {
	ctx := context.Background()
	b := s.NewBatch()
	b.IncrementTotal("fresh", core.Money{Cents: 75})
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	mustTotal(t, s, "fresh", 75)
}

func testConcurrentTransactions(t *testing.T, s store.Backend) {
	ctx := context.Background()
	if err := s.CreateUser(ctx, core.User{ID: "u1"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := newExpense("u1", fmt.Sprintf("item %d", i), int64(100+i), Day(1+i%3, i))
			errs <- addExpense(ctx, s, e)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent transaction: %v", err)
		}
	}

	list, err := s.ListExpenses(ctx, "u1")
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(list) != n {
		t.Fatalf("expected %d expenses, got %d", n, len(list))
	}
	mustTotal(t, s, "u1", core.SumAmounts(list).Cents)
}

func testAccounts(t *testing.T, s store.Backend) {
	ctx := context.Background()
	a := store.Account{
		Email:        "nika@example.com",
		UserID:       "u1",
		PasswordHash: []byte("hash"),
		CreatedAt:    Day(1, 0),
	}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	dup := a
	dup.Email = "Nika@Example.com"
	if err := s.CreateAccount(ctx, dup); !errors.Is(err, store.ErrAccountExists) {
		t.Fatalf("duplicate CreateAccount err = %v, want ErrAccountExists", err)
	}

	got, err := s.AccountByEmail(ctx, "NIKA@example.com")
	if err != nil {
		t.Fatalf("AccountByEmail: %v", err)
	}
	if got.UserID != "u1" || string(got.PasswordHash) != "hash" {
		t.Fatalf("unexpected account: %+v", got)
	}
	if _, err := s.AccountByEmail(ctx, "missing@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing account err = %v, want ErrNotFound", err)
	}
}
