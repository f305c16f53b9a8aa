package core

import (
	"testing"
	"time"
)

func TestGroupByDay(t *testing.T) {
	utc := time.UTC
	expenses := []Expense{
		{ID: "a", Name: "Coffee", Amount: Money{Cents: 250}, Date: time.Date(2025, 1, 2, 9, 0, 0, 0, utc)},
		{ID: "b", Name: "Lunch", Amount: Money{Cents: 1200}, Date: time.Date(2025, 1, 2, 13, 30, 0, 0, utc)},
		{ID: "c", Name: "Book", Amount: Money{Cents: 999}, Date: time.Date(2025, 1, 1, 18, 0, 0, 0, utc)},
	}

	groups := GroupByDay(expenses, utc)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if want := time.Date(2025, 1, 2, 0, 0, 0, 0, utc); !groups[0].Day.Equal(want) {
		t.Errorf("first group day = %v, want %v", groups[0].Day, want)
	}
	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, utc); !groups[1].Day.Equal(want) {
		t.Errorf("second group day = %v, want %v", groups[1].Day, want)
	}
	if groups[0].Subtotal.Cents != 1450 {
		t.Errorf("first subtotal = %d, want 1450", groups[0].Subtotal.Cents)
	}
	if groups[1].Subtotal.Cents != 999 {
		t.Errorf("second subtotal = %d, want 999", groups[1].Subtotal.Cents)
	}
	if groups[0].Expenses[0].ID != "b" {
		t.Errorf("rows should be newest first, got %q first", groups[0].Expenses[0].ID)
	}
}

func TestGroupByDayUsesLocation(t *testing.T) {
	// 2025-01-02 03:00 UTC is still 2025-01-01 in New York.
	ny := time.FixedZone("EST", -5*60*60)
	e := Expense{ID: "a", Amount: Money{Cents: 100}, Date: time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)}

	groups := GroupByDay([]Expense{e}, ny)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if y, m, d := groups[0].Day.Date(); y != 2025 || m != time.January || d != 1 {
		t.Errorf("group day = %v, want 2025-01-01", groups[0].Day)
	}
}

func TestGroupByDayEmpty(t *testing.T) {
	if groups := GroupByDay(nil, time.UTC); len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestSumAmounts(t *testing.T) {
	got := SumAmounts([]Expense{{Amount: Money{Cents: 1}}, {Amount: Money{Cents: 299}}})
	if got.Cents != 300 {
		t.Fatalf("SumAmounts = %d, want 300", got.Cents)
	}
}

func TestDayGroupLabels(t *testing.T) {
	g := DayGroup{
		Day:      time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Subtotal: Money{Cents: 1450},
	}
	if got := g.Header(); got != "January 2, 2025" {
		t.Errorf("Header = %q", got)
	}
	if got := g.Footer(); got != "Daily Total: $14.50" {
		t.Errorf("Footer = %q", got)
	}
	if got := RowLabel(Expense{Name: "Coffee", Amount: Money{Cents: 250}}); got != "Coffee: $2.50" {
		t.Errorf("RowLabel = %q", got)
	}
}
