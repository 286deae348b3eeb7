package view

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"mysokha/internal/core"
)

// SortByDateDesc orders newest first. Expenses sharing a date keep their
// snapshot order. The input is not modified.
func SortByDateDesc(expenses []core.Expense) []core.Expense {
	out := slices.Clone(expenses)
	slices.SortStableFunc(out, func(a, b core.Expense) int {
		return strings.Compare(b.Date, a.Date)
	})
	return out
}

// SortByDateAsc is the chronological order used by reports.
func SortByDateAsc(expenses []core.Expense) []core.Expense {
	out := slices.Clone(expenses)
	slices.SortStableFunc(out, func(a, b core.Expense) int {
		return strings.Compare(a.Date, b.Date)
	})
	return out
}

// Total sums the amounts. Non-numeric amounts add nothing.
func Total(expenses []core.Expense) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range expenses {
		sum = sum.Add(e.Amount.Decimal())
	}
	return sum
}

// RecordedOn returns the set of expense names recorded on date.
func RecordedOn(expenses []core.Expense, date string) map[string]bool {
	set := make(map[string]bool)
	for _, e := range expenses {
		if e.Date == date {
			set[e.ExpenseName] = true
		}
	}
	return set
}

// TemplateOption is one entry of the category picker.
type TemplateOption struct {
	Name     string
	Recorded bool
	Selected bool
}

// Label marks names already used today instead of hiding them.
func (o TemplateOption) Label() string {
	if o.Recorded {
		return o.Name + " (recorded today)"
	}
	return o.Name
}

// Options builds the picker for a draft row. Names are only marked when the
// row itself is dated today.
func Options(templates []core.Template, recorded map[string]bool, row core.DraftRow, today string) []TemplateOption {
	opts := make([]TemplateOption, 0, len(templates))
	for _, t := range templates {
		opts = append(opts, TemplateOption{
			Name:     t.Name,
			Recorded: row.Date == today && recorded[t.Name],
			Selected: t.Name == row.ExpenseName,
		})
	}
	return opts
}

// DefaultTemplateName picks the name a new draft row starts with: the
// first template not yet recorded today, else the first template.
func DefaultTemplateName(templates []core.Template, recorded map[string]bool) string {
	for _, t := range templates {
		if !recorded[t.Name] {
			return t.Name
		}
	}
	if len(templates) > 0 {
		return templates[0].Name
	}
	return ""
}

// SortTemplates orders templates by creation time, oldest first.
func SortTemplates(templates []core.Template) []core.Template {
	out := slices.Clone(templates)
	slices.SortStableFunc(out, func(a, b core.Template) int {
		switch {
		case a.CreatedAt < b.CreatedAt:
			return -1
		case a.CreatedAt > b.CreatedAt:
			return 1
		}
		return 0
	})
	return out
}
