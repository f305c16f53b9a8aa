package http

import (
	"strings"
	"time"

	"spendwise/internal/core"
)

type (
	// pageData is handed to every full-page template.
	pageData struct {
		Title  string
		Email  string
		Dialog *Dialog
		Total  string
		Groups []dayView
	}

	dayView struct {
		Header string
		Footer string
		Rows   []rowView
	}

	rowView struct {
		ID    string
		Label string
	}
)

// buildDayViews turns expenses into the list screen's day sections.
func buildDayViews(expenses []core.Expense, loc *time.Location) []dayView {
	groups := core.GroupByDay(expenses, loc)
	views := make([]dayView, 0, len(groups))
	for _, g := range groups {
		v := dayView{
			Header: g.Header(),
			Footer: g.Footer(),
			Rows:   make([]rowView, 0, len(g.Expenses)),
		}
		for _, e := range g.Expenses {
			v.Rows = append(v.Rows, rowView{ID: e.ID, Label: core.RowLabel(e)})
		}
		views = append(views, v)
	}
	return views
}

// sanitizeInput removes control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
