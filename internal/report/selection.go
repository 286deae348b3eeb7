package report

import (
	"strings"
	"time"

	"mysokha/internal/core"
	"mysokha/internal/view"
)

// Mode picks which expenses a report covers.
type Mode string

const (
	CurrentMonth Mode = "current_month"
	SelectMonth  Mode = "select_month"
	DateRange    Mode = "date_range"
)

// Modes lists the modes in the order the downloader offers them.
var Modes = []Mode{CurrentMonth, SelectMonth, DateRange}

const (
	monthLayout  = "2006-01"
	genericTitle = "Expense report"
)

// Label is the option text shown in the mode picker.
func (m Mode) Label() string {
	switch m {
	case CurrentMonth:
		return "This month"
	case SelectMonth:
		return "Pick a month"
	case DateRange:
		return "Date range"
	}
	return string(m)
}

// ParseMode reports whether s names a known mode.
func ParseMode(s string) (Mode, bool) {
	for _, m := range Modes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Selection is the downloader state: the mode plus whichever inputs it reads.
type Selection struct {
	Mode  Mode
	Month string
	Start string
	End   string
}

// DefaultSelection starts on the current month with both range ends at today.
func DefaultSelection(now time.Time) Selection {
	today := now.Format(core.DateLayout)
	return Selection{
		Mode:  CurrentMonth,
		Month: now.Format(monthLayout),
		Start: today,
		End:   today,
	}
}

// Key identifies the selection for caching generated files.
func (s Selection) Key(now time.Time) string {
	switch s.Mode {
	case CurrentMonth:
		return string(s.Mode) + ":" + now.Format(monthLayout)
	case SelectMonth:
		return string(s.Mode) + ":" + s.Month
	case DateRange:
		return string(s.Mode) + ":" + s.Start + ":" + s.End
	}
	return string(s.Mode)
}

// Select returns the expenses covered by sel, sorted by date ascending.
// Range bounds compare as strings and are inclusive.
func Select(expenses []core.Expense, sel Selection, now time.Time) []core.Expense {
	var match func(date string) bool
	switch sel.Mode {
	case CurrentMonth:
		month := now.Format(monthLayout)
		match = func(date string) bool { return strings.HasPrefix(date, month) }
	case SelectMonth:
		match = func(date string) bool { return strings.HasPrefix(date, sel.Month) }
	case DateRange:
		match = func(date string) bool { return date >= sel.Start && date <= sel.End }
	default:
		return nil
	}

	out := make([]core.Expense, 0, len(expenses))
	for _, e := range expenses {
		if match(e.Date) {
			out = append(out, e)
		}
	}
	return view.SortByDateAsc(out)
}

// Title is the heading written into every generated file.
func Title(sel Selection, now time.Time) string {
	switch sel.Mode {
	case CurrentMonth:
		return genericTitle + " " + now.Format("January 2006")
	case SelectMonth:
		if t, err := time.Parse(monthLayout, sel.Month); err == nil {
			return genericTitle + " " + t.Format("January 2006")
		}
	case DateRange:
		start, err1 := time.Parse(core.DateLayout, sel.Start)
		end, err2 := time.Parse(core.DateLayout, sel.End)
		if err1 == nil && err2 == nil {
			return "Report from " + start.Format("2 January 2006") + " to " + end.Format("2 January 2006")
		}
	}
	return genericTitle
}
