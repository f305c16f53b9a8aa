package core

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseDeleted EventType = "expense.deleted"
)

// ExpenseEvent announces a committed create or delete. It travels on the
// in-process hub and, when configured, on the AMQP fanout exchange.
type ExpenseEvent struct {
	Type        EventType `json:"type"`
	UserID      string    `json:"user_id"`
	ExpenseID   string    `json:"expense_id"`
	Name        string    `json:"name"`
	AmountCents int64     `json:"amount_cents"`
	Date        time.Time `json:"date"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewExpenseEvent(t EventType, e Expense) ExpenseEvent {
	return ExpenseEvent{
		Type:        t,
		UserID:      e.UserID,
		ExpenseID:   e.ID,
		Name:        e.Name,
		AmountCents: e.Amount.Cents,
		Date:        e.Date,
		Timestamp:   time.Now().UTC(),
	}
}

// Expense rebuilds the record carried by the event.
func (ev ExpenseEvent) Expense() Expense {
	return Expense{
		ID:     ev.ExpenseID,
		UserID: ev.UserID,
		Name:   ev.Name,
		Amount: Money{Cents: ev.AmountCents},
		Date:   ev.Date,
	}
}

func (ev ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(ev)
}

// ExpenseEventFromJSON decodes and checks an event body.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var ev ExpenseEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ExpenseEvent{}, err
	}
	switch ev.Type {
	case EventExpenseCreated, EventExpenseDeleted:
	default:
		return ExpenseEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.UserID == "" || ev.ExpenseID == "" {
		return ExpenseEvent{}, fmt.Errorf("event missing user or expense id")
	}
	return ev, nil
}
