package core

import (
	"sort"
	"time"
)

// DayGroup is one section of the expense list: every expense recorded on the
// same calendar day, newest first, with the day's subtotal.
type DayGroup struct {
	Day      time.Time // midnight in the grouping location
	Expenses []Expense
	Subtotal Money
}

// GroupByDay groups expenses by the calendar day of their timestamp in loc
// and returns the groups ordered by day, most recent first.
func GroupByDay(expenses []Expense, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	byDay := make(map[time.Time]*DayGroup)
	for _, e := range expenses {
		day := StartOfDay(e.Date, loc)
		g, ok := byDay[day]
		if !ok {
			g = &DayGroup{Day: day}
			byDay[day] = g
		}
		g.Expenses = append(g.Expenses, e)
		g.Subtotal = g.Subtotal.Add(e.Amount)
	}

	groups := make([]DayGroup, 0, len(byDay))
	for _, g := range byDay {
		sort.SliceStable(g.Expenses, func(i, j int) bool {
			return g.Expenses[i].Date.After(g.Expenses[j].Date)
		})
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Day.After(groups[j].Day)
	})
	return groups
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SumAmounts adds up the amounts of the given expenses.
func SumAmounts(expenses []Expense) Money {
	var total Money
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// DayHeaderLayout renders a group's day, e.g. "January 2, 2006".
const DayHeaderLayout = "January 2, 2006"

// Header is the section title for the group.
func (g DayGroup) Header() string {
	return g.Day.Format(DayHeaderLayout)
}

// Footer is the section footer carrying the day's subtotal.
func (g DayGroup) Footer() string {
	return "Daily Total: " + g.Subtotal.String()
}

// RowLabel is the list row text for one expense.
func RowLabel(e Expense) string {
	return e.Name + ": " + e.Amount.String()
}
