// Package sheets mirrors the expense ledger into a spreadsheet.
package sheets

import (
	"context"
	"errors"
	"time"

	"spendwise/internal/core"
)

// ErrRowNotFound is returned by Delete when no row carries the expense id.
var ErrRowNotFound = errors.New("sheet row not found")

// Ports for outbound adapters.
type (
	// ExpenseExporter keeps one row per expense. Append is idempotent on the
	// expense id so redelivered events do not duplicate rows.
	ExpenseExporter interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
		Delete(ctx context.Context, expenseID string) error
	}
)

// Row is the exported column layout: expense id, user id, date, name, amount.
func Row(e core.Expense, loc *time.Location) []any {
	if loc == nil {
		loc = time.UTC
	}
	return []any{
		e.ID,
		e.UserID,
		e.Date.In(loc).Format(DateLayout),
		e.Name,
		float64(e.Amount.Cents) / 100,
	}
}

// DateLayout formats the date column.
const DateLayout = "2006-01-02 15:04:05"
