// Package worker mirrors committed expense events into the ledger export.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/sheets"
	"spendwise/internal/store"
)

// ExportWorker applies expense events to an exporter. It is the handler of
// the durable export queue: an error return requeues the event.
type ExportWorker struct {
	exporter sheets.ExpenseExporter
	reader   store.Reader
	logger   *log.Logger

	appended atomic.Int64
	deleted  atomic.Int64
	skipped  atomic.Int64
}

// NewExportWorker builds a worker. reader may be nil; when set, created
// events are checked against the store so a record deleted before its
// create was exported is never written.
func NewExportWorker(exporter sheets.ExpenseExporter, reader store.Reader, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExportWorker{
		exporter: exporter,
		reader:   reader,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes a single expense event from AMQP.
func (w *ExportWorker) HandleEvent(ctx context.Context, ev core.ExpenseEvent) error {
	w.logger.InfoContext(ctx, "Processing expense event",
		log.FieldEventType, ev.Type,
		log.FieldUserID, ev.UserID,
		log.FieldExpenseID, ev.ExpenseID)

	switch ev.Type {
	case core.EventExpenseCreated:
		return w.exportCreated(ctx, ev)
	case core.EventExpenseDeleted:
		return w.exportDeleted(ctx, ev)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (w *ExportWorker) exportCreated(ctx context.Context, ev core.ExpenseEvent) error {
	e := ev.Expense()

	if w.reader != nil {
		stored, err := w.reader.GetExpense(ctx, ev.UserID, ev.ExpenseID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			w.skipped.Add(1)
			w.logger.InfoContext(ctx, "Expense no longer exists, skipping export",
				log.FieldExpenseID, ev.ExpenseID)
			return nil
		case err != nil:
			return fmt.Errorf("get expense from store: %w", err)
		}
		e = stored
	}

	ref, err := w.exporter.Append(ctx, e)
	if err != nil {
		if errors.Is(err, core.ErrEmptyName) || errors.Is(err, core.ErrInvalidAmount) || errors.Is(err, core.ErrNameTooLong) {
			// Retrying cannot fix a malformed record.
			w.skipped.Add(1)
			w.logger.ErrorContext(ctx, "Dropping invalid expense",
				log.FieldExpenseID, e.ID,
				log.FieldError, err)
			return nil
		}
		return fmt.Errorf("append to export: %w", err)
	}

	w.appended.Add(1)
	w.logger.InfoContext(ctx, "Exported expense",
		log.FieldExpenseID, e.ID,
		log.FieldSheetsRef, ref,
		log.FieldAmountCents, e.Amount.Cents)
	return nil
}

func (w *ExportWorker) exportDeleted(ctx context.Context, ev core.ExpenseEvent) error {
	err := w.exporter.Delete(ctx, ev.ExpenseID)
	switch {
	case errors.Is(err, sheets.ErrRowNotFound):
		w.skipped.Add(1)
		w.logger.WarnContext(ctx, "Exported row already gone",
			log.FieldExpenseID, ev.ExpenseID)
		return nil
	case err != nil:
		return fmt.Errorf("delete from export: %w", err)
	}

	w.deleted.Add(1)
	w.logger.InfoContext(ctx, "Removed exported expense", log.FieldExpenseID, ev.ExpenseID)
	return nil
}

// Stats reports how many events were applied or skipped.
func (w *ExportWorker) Stats() map[string]int64 {
	return map[string]int64{
		"appended": w.appended.Load(),
		"deleted":  w.deleted.Load(),
		"skipped":  w.skipped.Load(),
	}
}
