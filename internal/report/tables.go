package report

import (
	"slices"

	"github.com/shopspring/decimal"

	"mysokha/internal/core"
)

// Column headers shared by the spreadsheet and PDF writers.
const (
	headerNo      = "No."
	headerDate    = "Date"
	headerExpense = "Expense"
	headerAmount  = "Amount"
	headerTotal   = "Total"
)

// SummaryRow is one expense name with everything spent on it.
type SummaryRow struct {
	No     int
	Name   string
	Amount decimal.Decimal
}

// Summary groups the selection by expense name.
type Summary struct {
	Title string
	Rows  []SummaryRow
	Total decimal.Decimal
}

// BuildSummary sums amounts per name; names are listed lexicographically.
func BuildSummary(title string, expenses []core.Expense) Summary {
	sums := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		sums[e.ExpenseName] = sums[e.ExpenseName].Add(e.Amount.Decimal())
	}

	s := Summary{Title: title, Total: decimal.Zero}
	for i, name := range sortedKeys(sums) {
		s.Rows = append(s.Rows, SummaryRow{No: i + 1, Name: name, Amount: sums[name]})
		s.Total = s.Total.Add(sums[name])
	}
	return s
}

// Grid lays the summary out as spreadsheet rows: title, blank, header,
// one row per name, blank, total.
func (s Summary) Grid() [][]any {
	grid := [][]any{
		{s.Title, nil, nil},
		{},
		{headerNo, headerExpense, headerAmount},
	}
	for _, r := range s.Rows {
		grid = append(grid, []any{r.No, r.Name, r.Amount.InexactFloat64()})
	}
	grid = append(grid, []any{}, []any{nil, headerTotal, s.Total.InexactFloat64()})
	return grid
}

// Pivot is a names by dates matrix of sums.
type Pivot struct {
	Title     string
	Names     []string
	Dates     []string
	Cells     [][]decimal.Decimal
	RowTotals []decimal.Decimal
	ColTotals []decimal.Decimal
	Total     decimal.Decimal
}

// BuildPivot cross-tabulates the selection. Both axes are sorted.
func BuildPivot(title string, expenses []core.Expense) Pivot {
	byName := make(map[string]map[string]decimal.Decimal)
	dates := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		if byName[e.ExpenseName] == nil {
			byName[e.ExpenseName] = make(map[string]decimal.Decimal)
		}
		amount := e.Amount.Decimal()
		byName[e.ExpenseName][e.Date] = byName[e.ExpenseName][e.Date].Add(amount)
		dates[e.Date] = dates[e.Date].Add(amount)
	}

	p := Pivot{
		Title: title,
		Names: sortedKeys(byName),
		Dates: sortedKeys(dates),
		Total: decimal.Zero,
	}
	for _, d := range p.Dates {
		p.ColTotals = append(p.ColTotals, dates[d])
	}
	for _, name := range p.Names {
		row := make([]decimal.Decimal, len(p.Dates))
		rowTotal := decimal.Zero
		for j, d := range p.Dates {
			row[j] = byName[name][d]
			rowTotal = rowTotal.Add(row[j])
		}
		p.Cells = append(p.Cells, row)
		p.RowTotals = append(p.RowTotals, rowTotal)
		p.Total = p.Total.Add(rowTotal)
	}
	return p
}

// Width is the number of columns the pivot occupies.
func (p Pivot) Width() int { return len(p.Dates) + 2 }

// Grid lays the pivot out as spreadsheet rows. Zero cells are left blank.
func (p Pivot) Grid() [][]any {
	header := make([]any, 0, p.Width())
	header = append(header, headerExpense)
	for _, d := range p.Dates {
		header = append(header, d)
	}
	header = append(header, headerTotal)

	grid := [][]any{{p.Title}, {}, header}
	for i, name := range p.Names {
		row := make([]any, 0, p.Width())
		row = append(row, name)
		for _, v := range p.Cells[i] {
			if v.IsZero() {
				row = append(row, nil)
				continue
			}
			row = append(row, v.InexactFloat64())
		}
		row = append(row, p.RowTotals[i].InexactFloat64())
		grid = append(grid, row)
	}

	footer := make([]any, 0, p.Width())
	footer = append(footer, headerTotal)
	for _, v := range p.ColTotals {
		footer = append(footer, v.InexactFloat64())
	}
	footer = append(footer, p.Total.InexactFloat64())
	return append(grid, []any{}, footer)
}

// DocumentRow is one line of the printable table.
type DocumentRow struct {
	No     int
	Date   string
	Name   string
	Amount decimal.Decimal
}

// Document is the flat table printed into the PDF.
type Document struct {
	Title string
	Rows  []DocumentRow
	Total decimal.Decimal
}

// BuildDocument numbers every expense in the order given.
func BuildDocument(title string, expenses []core.Expense) Document {
	doc := Document{Title: title, Total: decimal.Zero}
	for i, e := range expenses {
		amount := e.Amount.Decimal()
		doc.Rows = append(doc.Rows, DocumentRow{No: i + 1, Date: e.Date, Name: e.ExpenseName, Amount: amount})
		doc.Total = doc.Total.Add(amount)
	}
	return doc
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
