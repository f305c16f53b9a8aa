package amqp

import (
	"context"

	"spendwise/internal/core"
	"spendwise/internal/log"
)

// Sink is anything that accepts expense events.
type Sink interface {
	Notify(ctx context.Context, ev core.ExpenseEvent) error
}

// FallbackNotifier publishes to the broker and, when that fails, hands the
// event to a local sink so this instance's listeners still refresh.
type FallbackNotifier struct {
	primary  Sink
	fallback Sink
	logger   *log.Logger
}

func NewFallbackNotifier(primary, fallback Sink, logger *log.Logger) *FallbackNotifier {
	if logger == nil {
		logger = log.Discard()
	}
	return &FallbackNotifier{
		primary:  primary,
		fallback: fallback,
		logger:   logger.WithComponent(log.ComponentAMQP),
	}
}

func (n *FallbackNotifier) Notify(ctx context.Context, ev core.ExpenseEvent) error {
	err := n.primary.Notify(ctx, ev)
	if err == nil {
		return nil
	}
	n.logger.WarnContext(ctx, "Broker publish failed, notifying locally",
		log.FieldError, err,
		log.FieldEventType, ev.Type,
		log.FieldUserID, ev.UserID)
	return n.fallback.Notify(ctx, ev)
}
