package realtime

import (
	"context"
	"errors"

	"spendwise/internal/core"
	"spendwise/internal/log"
	"spendwise/internal/store"
)

type (
	// TotalSnapshot is one delivery of a user's cached total. Err is set when
	// the read failed; Total is then zero.
	TotalSnapshot struct {
		Total core.Money
		Err   error
	}

	// ExpensesSnapshot is one delivery of a user's expenses, newest first.
	ExpensesSnapshot struct {
		Expenses []core.Expense
		Err      error
	}
)

// Listener opens snapshot streams over a store.Reader.
type Listener struct {
	reader store.Reader
	hub    *Hub
	logger *log.Logger
}

func NewListener(reader store.Reader, hub *Hub, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.Discard()
	}
	return &Listener{
		reader: reader,
		hub:    hub,
		logger: logger.WithComponent(log.ComponentRealtime),
	}
}

// WatchTotal delivers the user's current total and then a fresh one after each
// change. The channel is closed once ctx is done. A user without a document
// reads as a zero total.
func (l *Listener) WatchTotal(ctx context.Context, userID string) <-chan TotalSnapshot {
	return watch(ctx, l, userID, func(ctx context.Context) TotalSnapshot {
		u, err := l.reader.GetUser(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return TotalSnapshot{}
		}
		if err != nil {
			return TotalSnapshot{Err: err}
		}
		return TotalSnapshot{Total: u.TotalExpense}
	})
}

// WatchExpenses delivers the user's expense list with the same lifecycle as WatchTotal.
func (l *Listener) WatchExpenses(ctx context.Context, userID string) <-chan ExpensesSnapshot {
	return watch(ctx, l, userID, func(ctx context.Context) ExpensesSnapshot {
		list, err := l.reader.ListExpenses(ctx, userID)
		if err != nil {
			return ExpensesSnapshot{Err: err}
		}
		return ExpensesSnapshot{Expenses: list}
	})
}

// watch subscribes before the first read so no change between the read and
// the subscription can be missed.
func watch[T any](ctx context.Context, l *Listener, userID string, read func(context.Context) T) <-chan T {
	out := make(chan T, 1)
	signals, release := l.hub.Subscribe(userID)
	l.logger.DebugContext(ctx, "Watch attached",
		log.FieldUserID, userID,
		"subscribers", l.hub.Subscribers(userID))

	go func() {
		defer close(out)
		defer func() {
			release()
			l.logger.DebugContext(ctx, "Watch detached",
				log.FieldUserID, userID,
				"subscribers", l.hub.Subscribers(userID))
		}()

		for {
			snap := read(ctx)
			if ctx.Err() != nil {
				return
			}
			if err := snapshotErr(snap); err != nil {
				l.logger.WarnContext(ctx, "Snapshot read failed",
					log.FieldUserID, userID,
					log.FieldError, err)
			}
			deliverLatest(out, snap)

			select {
			case <-ctx.Done():
				return
			case <-signals:
			}
		}
	}()

	return out
}

// deliverLatest replaces an undelivered snapshot instead of queueing behind it.
// It relies on being the only sender on out.
func deliverLatest[T any](out chan T, v T) {
	select {
	case <-out:
	default:
	}
	out <- v
}

func snapshotErr(v any) error {
	switch s := v.(type) {
	case TotalSnapshot:
		return s.Err
	case ExpensesSnapshot:
		return s.Err
	}
	return nil
}
