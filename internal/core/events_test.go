package core

import (
	"testing"
	"time"
)

func TestNewExpenseEvent(t *testing.T) {
	e := Expense{
		ID:     "e1",
		UserID: "u1",
		Name:   "Coffee",
		Amount: Money{Cents: 250},
		Date:   time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC),
	}

	ev := NewExpenseEvent(EventExpenseCreated, e)
	if ev.Type != EventExpenseCreated || ev.UserID != "u1" || ev.ExpenseID != "e1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.IsZero() || time.Since(ev.Timestamp) > time.Second {
		t.Errorf("timestamp should be recent, got %v", ev.Timestamp)
	}
	if got := ev.Expense(); got != e {
		t.Errorf("Expense() = %+v, want %+v", got, e)
	}
}

func TestExpenseEventFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"created", `{"type":"expense.created","user_id":"u1","expense_id":"e1","amount_cents":100}`, false},
		{"deleted", `{"type":"expense.deleted","user_id":"u1","expense_id":"e1"}`, false},
		{"unknown type", `{"type":"expense.edited","user_id":"u1","expense_id":"e1"}`, true},
		{"missing user", `{"type":"expense.created","expense_id":"e1"}`, true},
		{"not json", `{"type":`, true},
		{"wrong field type", `{"type":"expense.created","user_id":"u1","expense_id":"e1","amount_cents":"ten"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpenseEventFromJSON([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Errorf("ExpenseEventFromJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
