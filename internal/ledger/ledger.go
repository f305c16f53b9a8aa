// Package ledger keeps each user's cached total in step with their expenses.
//
// A create reads the total and writes the new record and the new total in one
// store transaction. A delete removes the record and applies a negative atomic
// increment in one batch. Nothing else writes the total.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/store"
)

// Notifier receives an event after each committed change.
type Notifier interface {
	Notify(ctx context.Context, ev core.ExpenseEvent) error
}

type Ledger struct {
	store    store.DocumentStore
	notifier Notifier
	logger   *log.Logger
	events   *log.StructuredLogger
	now      func() time.Time
	newID    func() string
}

type Option func(*Ledger)

// WithClock overrides the timestamp source for new expenses.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs overrides expense id generation.
func WithIDs(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New returns a ledger over st. notifier may be nil.
func New(st store.DocumentStore, notifier Notifier, opts ...Option) *Ledger {
	l := &Ledger{
		store:    st,
		notifier: notifier,
		logger:   log.Discard(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.WithComponent(log.ComponentLedger)
	l.events = log.NewStructuredLogger(l.logger)
	return l
}

// CreateUser writes a fresh user document with a zero total.
func (l *Ledger) CreateUser(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrMissingUser
	}
	if err := l.store.CreateUser(ctx, core.User{ID: userID}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	l.logger.InfoContext(ctx, "User created", log.FieldUserID, userID)
	return nil
}

// Total returns the cached total; a user without a document has spent nothing.
func (l *Ledger) Total(ctx context.Context, userID string) (core.Money, error) {
	u, err := l.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("get total: %w", err)
	}
	return u.TotalExpense, nil
}

// AddExpense records an expense and raises the user's total by its amount.
// Either both land or neither does.
func (l *Ledger) AddExpense(ctx context.Context, userID, name string, amount core.Money) (core.Expense, error) {
	e := core.Expense{
		ID:     l.newID(),
		UserID: userID,
		Name:   name,
		Amount: amount,
		Date:   l.now().UTC(),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if !u.TotalExpense.CanAdd(e.Amount) {
			return core.ErrTotalOverflow
		}
		u.ID = userID
		u.TotalExpense = u.TotalExpense.Add(e.Amount)

		tx.CreateExpense(e)
		tx.SetUser(u)
		return nil
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	l.events.LogExpenseCreated(ctx, e)
	l.notify(ctx, core.NewExpenseEvent(core.EventExpenseCreated, e))
	return e, nil
}

// RemoveExpense deletes one of the user's expenses and lowers the total by its
// amount. It fails with store.ErrNotFound when the record is gone or belongs
// to someone else, leaving the total untouched.
func (l *Ledger) RemoveExpense(ctx context.Context, userID, expenseID string) (core.Expense, error) {
	e, err := l.store.GetExpense(ctx, userID, expenseID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("delete expense: %w", err)
	}

	b := l.store.NewBatch()
	b.DeleteExpense(userID, e.ID)
	b.IncrementTotal(userID, e.Amount.Neg())
	if err := b.Commit(ctx); err != nil {
		return core.Expense{}, fmt.Errorf("delete expense: %w", err)
	}

	l.events.LogExpenseDeleted(ctx, e)
	l.notify(ctx, core.NewExpenseEvent(core.EventExpenseDeleted, e))
	return e, nil
}

// notify runs after the write is committed, so a failure here is logged and
// not reported to the caller.
func (l *Ledger) notify(ctx context.Context, ev core.ExpenseEvent) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, ev); err != nil {
		l.events.LogError(ctx, "Expense event not delivered", err, log.OpPublish,
			log.NewFields().WithUser(ev.UserID).WithExpense(ev.ExpenseID, ev.Name, ev.AmountCents))
	}
}
