package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/store"
	"spendwise/internal/store/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []core.ExpenseEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev core.ExpenseEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) Events() []core.ExpenseEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.ExpenseEvent(nil), n.events...)
}

// countingStore counts store calls and can fail transactions on demand.
type countingStore struct {
	store.DocumentStore
	mu    sync.Mutex
	calls int
	txErr error
}

func (s *countingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	s.calls++
	txErr := s.txErr
	s.mu.Unlock()
	if txErr != nil {
		return txErr
	}
	return s.DocumentStore.RunTransaction(ctx, fn)
}

func (s *countingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)
}

func assertTotalMatches(t *testing.T, st store.Reader, userID string) {
	t.Helper()
	ctx := context.Background()
	u, err := st.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	list, err := st.ListExpenses(ctx, userID)
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if sum := core.SumAmounts(list); sum != u.TotalExpense {
		t.Fatalf("cached total %s != sum of expenses %s", u.TotalExpense, sum)
	}
}

func TestCreateUserStartsAtZero(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := New(st, nil)

	if err := l.CreateUser(ctx, "u1"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	total, err := l.Total(ctx, "u1")
	if err != nil {
		t.Fatalf("Total: %v", err)
	}
	if total.String() != "$0.00" {
		t.Fatalf("total = %s, want $0.00", total)
	}
	if err := l.CreateUser(ctx, ""); !errors.Is(err, core.ErrMissingUser) {
		t.Fatalf("CreateUser(\"\") err = %v, want ErrMissingUser", err)
	}
}

func TestAddExpense(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	n := &recordingNotifier{}
	l := New(st, n, WithClock(fixedClock), WithIDs(func() string { return "e1" }))

	if err := l.CreateUser(ctx, "u1"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	e, err := l.AddExpense(ctx, "u1", "Lunch", core.Money{Cents: 1250})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if e.ID != "e1" || !e.Date.Equal(fixedClock()) {
		t.Fatalf("unexpected expense: %+v", e)
	}

	total, _ := l.Total(ctx, "u1")
	if total.Cents != 1250 {
		t.Fatalf("total = %d, want 1250", total.Cents)
	}
	assertTotalMatches(t, st, "u1")

	events := n.Events()
	if len(events) != 1 || events[0].Type != core.EventExpenseCreated || events[0].ExpenseID != "e1" {
		t.Fatalf("events = %+v", events)
	}
}

func TestAddExpenseWithoutUserDocument(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := New(st, nil)

	if _, err := l.AddExpense(ctx, "u1", "Book", core.Money{Cents: 999}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	assertTotalMatches(t, st, "u1")
}

func TestAddExpenseRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		expense string
		amount  core.Money
		wantErr error
	}{
		{"empty name", "u1", "  ", core.Money{Cents: 100}, core.ErrEmptyName},
		{"zero amount", "u1", "Tea", core.Money{}, core.ErrInvalidAmount},
		{"negative amount", "u1", "Tea", core.Money{Cents: -5}, core.ErrInvalidAmount},
		{"missing user", "", "Tea", core.Money{Cents: 100}, core.ErrMissingUser},
		{"above the cap", "u1", "Yacht", core.Money{Cents: core.MaxAmountCents + 1}, core.ErrInvalidAmount},
		{"parser overflow amount", "u1", "Yacht", core.Money{Cents: 9223372036854775700}, core.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &countingStore{DocumentStore: memory.New()}
			l := New(st, nil)
			_, err := l.AddExpense(context.Background(), tt.user, tt.expense, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if st.Calls() != 0 {
				t.Fatalf("store called %d times for invalid input", st.Calls())
			}
		})
	}
}

func TestAddExpenseTransactionFailure(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	st := &countingStore{DocumentStore: mem, txErr: store.ErrConflict}
	n := &recordingNotifier{}
	l := New(st, n)

	if err := l.CreateUser(ctx, "u1"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	_, err := l.AddExpense(ctx, "u1", "Lunch", core.Money{Cents: 1250})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	list, _ := mem.ListExpenses(ctx, "u1")
	if len(list) != 0 {
		t.Fatalf("expense stored despite failed transaction: %+v", list)
	}
	assertTotalMatches(t, mem, "u1")
	if len(n.Events()) != 0 {
		t.Fatal("notifier called for a failed write")
	}
}

func TestAddExpenseRejectsTotalOverflow(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	n := &recordingNotifier{}
	l := New(st, n)

	start := core.Money{Cents: math.MaxInt64 - core.MaxAmountCents + 1}
	if err := st.CreateUser(ctx, core.User{ID: "u1", TotalExpense: start}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err := l.AddExpense(ctx, "u1", "Yacht", core.Money{Cents: core.MaxAmountCents})
	if !errors.Is(err, core.ErrTotalOverflow) {
		t.Fatalf("err = %v, want ErrTotalOverflow", err)
	}

	u, err := st.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.TotalExpense != start {
		t.Fatalf("total = %s, want unchanged %s", u.TotalExpense, start)
	}
	if list, _ := st.ListExpenses(ctx, "u1"); len(list) != 0 {
		t.Fatalf("expense stored despite overflow: %+v", list)
	}
	if len(n.Events()) != 0 {
		t.Fatal("notifier called for a rejected write")
	}

	// An amount that still fits is accepted.
	if _, err := l.AddExpense(ctx, "u1", "Coffee", core.Money{Cents: core.MaxAmountCents - 1}); err != nil {
		t.Fatalf("AddExpense at the edge: %v", err)
	}
}

func TestRemoveExpense(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	n := &recordingNotifier{}
	l := New(st, n)

	if err := l.CreateUser(ctx, "u1"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	keep, _ := l.AddExpense(ctx, "u1", "Keep", core.Money{Cents: 300})
	drop, _ := l.AddExpense(ctx, "u1", "Drop", core.Money{Cents: 450})

	removed, err := l.RemoveExpense(ctx, "u1", drop.ID)
	if err != nil {
		t.Fatalf("RemoveExpense: %v", err)
	}
	if removed.ID != drop.ID || removed.Amount.Cents != 450 {
		t.Fatalf("removed = %+v", removed)
	}

	total, _ := l.Total(ctx, "u1")
	if total.Cents != keep.Amount.Cents {
		t.Fatalf("total = %d, want %d", total.Cents, keep.Amount.Cents)
	}
	assertTotalMatches(t, st, "u1")

	events := n.Events()
	if last := events[len(events)-1]; last.Type != core.EventExpenseDeleted || last.ExpenseID != drop.ID {
		t.Fatalf("last event = %+v", last)
	}
}

func TestRemoveExpenseTwice(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := New(st, nil)

	e, err := l.AddExpense(ctx, "u1", "Taxi", core.Money{Cents: 1500})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if _, err := l.RemoveExpense(ctx, "u1", e.ID); err != nil {
		t.Fatalf("first RemoveExpense: %v", err)
	}
	if _, err := l.RemoveExpense(ctx, "u1", e.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second RemoveExpense err = %v, want ErrNotFound", err)
	}

	total, _ := l.Total(ctx, "u1")
	if total.Cents != 0 {
		t.Fatalf("total = %d after double delete, want 0", total.Cents)
	}
}

func TestRemoveExpenseOfAnotherUser(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := New(st, nil)

	e, _ := l.AddExpense(ctx, "owner", "Rent", core.Money{Cents: 90000})
	if _, err := l.RemoveExpense(ctx, "intruder", e.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := st.GetExpense(ctx, "owner", e.ID); err != nil {
		t.Fatalf("owner's expense was removed: %v", err)
	}
	assertTotalMatches(t, st, "owner")
}

func TestNotifierErrorDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := New(st, &recordingNotifier{err: errors.New("broker down")})

	if _, err := l.AddExpense(ctx, "u1", "Coffee", core.Money{Cents: 250}); err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	assertTotalMatches(t, st, "u1")
}

func TestRandomSequenceKeepsTotalInStep(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := New(st, nil)
	rng := rand.New(rand.NewSource(7))

	var live []core.Expense
	for i := 0; i < 200; i++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			idx := rng.Intn(len(live))
			if _, err := l.RemoveExpense(ctx, "u1", live[idx].ID); err != nil {
				t.Fatalf("RemoveExpense: %v", err)
			}
			live = append(live[:idx], live[idx+1:]...)
			continue
		}
		e, err := l.AddExpense(ctx, "u1", fmt.Sprintf("item %d", i), core.Money{Cents: int64(1 + rng.Intn(10000))})
		if err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
		live = append(live, e)
	}
	assertTotalMatches(t, st, "u1")
}

func TestConcurrentWritesKeepTotalInStep(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	l := New(st, nil)

	seed := make([]core.Expense, 10)
	for i := range seed {
		e, err := l.AddExpense(ctx, "u1", fmt.Sprintf("seed %d", i), core.Money{Cents: 100})
		if err != nil {
			t.Fatalf("AddExpense: %v", err)
		}
		seed[i] = e
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := l.AddExpense(ctx, "u1", fmt.Sprintf("new %d", i), core.Money{Cents: int64(50 + i)}); err != nil {
				t.Errorf("AddExpense: %v", err)
			}
		}(i)
		go func(e core.Expense) {
			defer wg.Done()
			if _, err := l.RemoveExpense(ctx, "u1", e.ID); err != nil {
				t.Errorf("RemoveExpense: %v", err)
			}
		}(seed[i])
	}
	wg.Wait()

	assertTotalMatches(t, st, "u1")
}
