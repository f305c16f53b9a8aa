package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"spendwise/internal/core"
	sheetmem "spendwise/internal/sheets/memory"
	"spendwise/internal/store/memory"
)

type failingExporter struct{ err error }

func (f failingExporter) Append(context.Context, core.Expense) (string, error) { return "", f.err }
func (f failingExporter) Delete(context.Context, string) error                 { return f.err }

func created(e core.Expense) core.ExpenseEvent {
	return core.NewExpenseEvent(core.EventExpenseCreated, e)
}

func deleted(e core.Expense) core.ExpenseEvent {
	return core.NewExpenseEvent(core.EventExpenseDeleted, e)
}

func sample(id string) core.Expense {
	return core.Expense{
		ID:     id,
		UserID: "u1",
		Name:   "Coffee",
		Amount: core.Money{Cents: 250},
		Date:   time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestHandleEventMirrorsCreatesAndDeletes(t *testing.T) {
	ctx := context.Background()
	exp := sheetmem.New(time.UTC)
	w := NewExportWorker(exp, nil, nil)

	if err := w.HandleEvent(ctx, created(sample("e1"))); err != nil {
		t.Fatalf("created: %v", err)
	}
	if err := w.HandleEvent(ctx, created(sample("e2"))); err != nil {
		t.Fatalf("created: %v", err)
	}
	if err := w.HandleEvent(ctx, deleted(sample("e1"))); err != nil {
		t.Fatalf("deleted: %v", err)
	}

	rows := exp.Rows()
	if len(rows) != 1 || rows[0][0] != "e2" {
		t.Fatalf("rows = %v", rows)
	}

	// A redelivered delete finds nothing and is acknowledged.
	if err := w.HandleEvent(ctx, deleted(sample("e1"))); err != nil {
		t.Fatalf("repeated delete: %v", err)
	}

	stats := w.Stats()
	if stats["appended"] != 2 || stats["deleted"] != 1 || stats["skipped"] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestHandleEventSkipsExpensesGoneFromStore(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	exp := sheetmem.New(time.UTC)
	w := NewExportWorker(exp, st, nil)

	if err := w.HandleEvent(ctx, created(sample("missing"))); err != nil {
		t.Fatalf("created: %v", err)
	}
	if len(exp.Rows()) != 0 {
		t.Fatalf("exported a record that is not in the store: %v", exp.Rows())
	}
}

func TestHandleEventRequeuesOnExporterFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := NewExportWorker(failingExporter{err: boom}, nil, nil)

	if err := w.HandleEvent(context.Background(), created(sample("e1"))); !errors.Is(err, boom) {
		t.Fatalf("created err = %v, want %v", err, boom)
	}
	if err := w.HandleEvent(context.Background(), deleted(sample("e1"))); !errors.Is(err, boom) {
		t.Fatalf("deleted err = %v, want %v", err, boom)
	}
}

func TestHandleEventDropsInvalidRecords(t *testing.T) {
	e := sample("e1")
	e.Amount = core.Money{}
	w := NewExportWorker(sheetmem.New(time.UTC), nil, nil)

	if err := w.HandleEvent(context.Background(), created(e)); err != nil {
		t.Fatalf("invalid record should be acknowledged, got %v", err)
	}
	if w.Stats()["skipped"] != 1 {
		t.Fatalf("stats = %v", w.Stats())
	}
}

func TestHandleEventRejectsUnknownType(t *testing.T) {
	w := NewExportWorker(sheetmem.New(time.UTC), nil, nil)
	ev := created(sample("e1"))
	ev.Type = "expense.edited"
	if err := w.HandleEvent(context.Background(), ev); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}
