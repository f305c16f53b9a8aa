// Package store defines the document store the application persists to.
//
// A store holds two collections, users (keyed by user id, carrying the cached
// total) and expenses (owned by a user, ordered by date). Writes go through
// two primitives only: a read-then-write transaction and a write batch with
// atomic increment. Backends live in the sub-packages.
package store

import (
	"context"
	"errors"
	"time"

	"spendwise/internal/core"
)

var (
	// ErrNotFound is returned for a missing document, or an expense that
	// does not belong to the requesting user.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a transaction could not be serialized
	// against concurrent writers and was aborted.
	ErrConflict = errors.New("transaction conflict")

	// ErrReadAfterWrite is returned when a transaction reads after it has
	// staged a write. All reads must come first.
	ErrReadAfterWrite = errors.New("transaction reads must happen before writes")

	// ErrAccountExists is returned when a credential is already registered for an email.
	ErrAccountExists = errors.New("account already exists")
)

type (
	// Reader is the read side used by listeners and screens.
	Reader interface {
		// GetUser returns the user document or ErrNotFound.
		GetUser(ctx context.Context, userID string) (core.User, error)

		// GetExpense returns the expense if it exists and belongs to userID.
		GetExpense(ctx context.Context, userID, expenseID string) (core.Expense, error)

		// ListExpenses returns the user's expenses ordered by date, newest first.
		ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)
	}

	// Tx is handed to the RunTransaction callback. Writes are staged and
	// applied together when the callback returns nil.
	Tx interface {
		GetUser(ctx context.Context, userID string) (core.User, error)
		SetUser(user core.User)
		CreateExpense(e core.Expense)
	}

	// Batch collects writes that are committed as one unit.
	Batch interface {
		// DeleteExpense removes the expense; the commit fails with ErrNotFound
		// if it is absent or owned by another user.
		DeleteExpense(userID, expenseID string)

		// IncrementTotal adds delta to the user's cached total without reading it.
		IncrementTotal(userID string, delta core.Money)

		Commit(ctx context.Context) error
	}

	DocumentStore interface {
		Reader

		// CreateUser writes the user document, replacing any existing one.
		CreateUser(ctx context.Context, user core.User) error

		// RunTransaction runs fn and applies its staged writes atomically.
		// If fn returns an error, or the store detects a conflict, nothing
		// is applied.
		RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

		NewBatch() Batch

		Ping(ctx context.Context) error
		Close() error
	}

	// Account is a locally held credential.
	Account struct {
		Email        string
		UserID       string
		PasswordHash []byte
		CreatedAt    time.Time
	}

	// AccountStore persists credentials for the local account provider.
	AccountStore interface {
		CreateAccount(ctx context.Context, a Account) error
		AccountByEmail(ctx context.Context, email string) (Account, error)
	}
)

// Backend is what every store sub-package provides.
type Backend interface {
	DocumentStore
	AccountStore
}

// TxWrites records staged transaction writes in order. Backends embed it in
// their Tx implementation and replay the writes at commit time.
type TxWrites struct {
	Users    []core.User
	Expenses []core.Expense
	wrote    bool
}

func (w *TxWrites) SetUser(user core.User) {
	w.Users = append(w.Users, user)
	w.wrote = true
}

func (w *TxWrites) CreateExpense(e core.Expense) {
	w.Expenses = append(w.Expenses, e)
	w.wrote = true
}

// CheckRead returns ErrReadAfterWrite once a write has been staged.
func (w *TxWrites) CheckRead() error {
	if w.wrote {
		return ErrReadAfterWrite
	}
	return nil
}

// BatchOp is one staged batch write.
type BatchOp struct {
	UserID    string
	ExpenseID string     // set for deletes
	Delta     core.Money // set for increments
}

// IsDelete reports whether the op deletes an expense.
func (op BatchOp) IsDelete() bool {
	return op.ExpenseID != ""
}

// BatchOps records staged batch writes in order.
type BatchOps struct {
	Ops []BatchOp
}

func (b *BatchOps) DeleteExpense(userID, expenseID string) {
	b.Ops = append(b.Ops, BatchOp{UserID: userID, ExpenseID: expenseID})
}

func (b *BatchOps) IncrementTotal(userID string, delta core.Money) {
	b.Ops = append(b.Ops, BatchOp{UserID: userID, Delta: delta})
}
