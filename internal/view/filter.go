// Package view derives what the pages show from a collection snapshot:
// filtered subsets, ordering, totals, pagination and the recorded-today
// guard. Everything here is pure.
package view

import (
	"fmt"
	"time"

	"mysokha/internal/core"
)

type FilterType string

const (
	Daily   FilterType = "daily"
	Monthly FilterType = "monthly"
	Yearly  FilterType = "yearly"
	All     FilterType = "all"
)

// AllValue is the filter value paired with the All type.
const AllValue = "all"

// FilterTypes lists the selectable types in display order.
var FilterTypes = []FilterType{Daily, Monthly, Yearly, All}

// Filter selects expenses by date. Value is YYYY-MM-DD, YYYY-MM, YYYY or
// AllValue depending on Type.
type Filter struct {
	Type  FilterType
	Value string
}

// ParseFilterType returns the type named by s, or false.
func ParseFilterType(s string) (FilterType, bool) {
	switch t := FilterType(s); t {
	case Daily, Monthly, Yearly, All:
		return t, true
	}
	return "", false
}

// DefaultFilter is the canonical filter for t at now: today, this month,
// this year or all time.
func DefaultFilter(t FilterType, now time.Time) Filter {
	today := now.Format(core.DateLayout)
	switch t {
	case Daily:
		return Filter{Type: Daily, Value: today}
	case Monthly:
		return Filter{Type: Monthly, Value: today[:7]}
	case Yearly:
		return Filter{Type: Yearly, Value: today[:4]}
	default:
		return Filter{Type: All, Value: AllValue}
	}
}

// WithType switches the filter type. The value always resets to the
// default for the new type.
func (f Filter) WithType(t FilterType, now time.Time) Filter {
	return DefaultFilter(t, now)
}

// Match reports whether e falls inside the filter window.
func (f Filter) Match(e core.Expense) bool {
	switch f.Type {
	case All:
		return true
	case Daily:
		return f.Value != "" && e.Date == f.Value
	case Monthly:
		return len(f.Value) == 7 && prefix(e.Date, 7) == f.Value
	case Yearly:
		return len(f.Value) == 4 && prefix(e.Date, 4) == f.Value
	}
	return false
}

// Valid reports whether Value has the shape Type requires.
func (f Filter) Valid() bool {
	switch f.Type {
	case All:
		return true
	case Daily:
		return core.ValidDate(f.Value)
	case Monthly:
		_, err := time.Parse("2006-01", f.Value)
		return err == nil && len(f.Value) == 7
	case Yearly:
		_, err := time.Parse("2006", f.Value)
		return err == nil && len(f.Value) == 4
	}
	return false
}

// Apply keeps the expenses matching f, preserving order.
func Apply(expenses []core.Expense, f Filter) []core.Expense {
	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// SummaryTitle is the heading shown above the filtered total.
func SummaryTitle(f Filter) string {
	switch f.Type {
	case Daily:
		if t, err := time.Parse(core.DateLayout, f.Value); err == nil {
			return "Total for " + t.Format("2 January 2006")
		}
		return "Total for the day"
	case Monthly:
		if t, err := time.Parse("2006-01", f.Value); err == nil {
			return "Total for " + t.Format("January 2006")
		}
		return "Total for the month"
	case Yearly:
		return fmt.Sprintf("Total for %s", f.Value)
	default:
		return "Total of all time"
	}
}

func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
