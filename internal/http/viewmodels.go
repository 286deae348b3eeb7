package http

import (
	"context"
	"html/template"
	"slices"

	"mysokha/internal/core"
	"mysokha/internal/drafts"
	"mysokha/internal/identity"
	"mysokha/internal/report"
	"mysokha/internal/shell"
	"mysokha/internal/view"
)

// Events announced to the page, either by the event stream or as HX-Trigger.
const (
	eventExpensesChanged  = "expenses:changed"
	eventTemplatesChanged = "templates:changed"
)

var templateFuncs = template.FuncMap{
	"pageNumbers": func(p view.Pagination) []int {
		out := make([]int, p.TotalPages)
		for i := range out {
			out[i] = i + 1
		}
		return out
	},
}

var filterLabels = map[view.FilterType]string{
	view.Daily:   "Day",
	view.Monthly: "Month",
	view.Yearly:  "Year",
	view.All:     "All time",
}

type navItem struct {
	shell.NavItem
	Active bool
}

type layoutData struct {
	Title string
	Page  shell.Page
	Nav   []navItem
}

func newLayout(p shell.Page) layoutData {
	l := layoutData{Page: p}
	for _, item := range shell.Nav {
		l.Nav = append(l.Nav, navItem{NavItem: item, Active: item.Page == p})
		if item.Page == p {
			l.Title = item.Label
		}
	}
	return l
}

type option struct {
	Value    string
	Label    string
	Selected bool
}

type filterData struct {
	View      string // region the control reloads: "dashboard" or "list"
	Type      view.FilterType
	Value     string
	Types     []option
	InputType string
}

func newFilterData(region string, f view.Filter) filterData {
	d := filterData{View: region, Type: f.Type, Value: f.Value}
	for _, t := range view.FilterTypes {
		d.Types = append(d.Types, option{Value: string(t), Label: filterLabels[t], Selected: t == f.Type})
	}
	switch f.Type {
	case view.Daily:
		d.InputType = "date"
	case view.Monthly:
		d.InputType = "month"
	case view.Yearly:
		d.InputType = "number"
	}
	return d
}

type summaryData struct {
	Title string
	Total string
	Count int
}

type reportData struct {
	Selection     report.Selection
	Modes         []option
	Generating    bool
	PDFAvailable  bool
	SheetsEnabled bool
}

type dashboardBody struct {
	Filter  filterData
	Summary summaryData
	Report  reportData
}

type dashboardData struct {
	layoutData
	Body dashboardBody
}

type rowData struct {
	ID          string
	Name        string
	Date        string
	Amount      string
	AmountInput string
	AddedBy     string
}

type listBody struct {
	Filter     filterData
	ShowFilter bool
	Summary    summaryData
	Rows       []rowData
	Pagination view.Pagination
	Pending    *rowData
}

type listData struct {
	layoutData
	Body listBody
}

type editRowData struct {
	rowData
	Options []view.TemplateOption
}

type draftRowData struct {
	Row      core.DraftRow
	Options  []view.TemplateOption
	Recorded bool // the row's name is already recorded today
}

type draftsBody struct {
	Rows        []draftRowData
	NoTemplates bool
}

type addData struct {
	layoutData
	Body draftsBody
}

type templatesBody struct {
	Templates []core.Template
}

type templatesData struct {
	layoutData
	Body templatesBody
}

func (s *Server) filtered(sess shell.Session) ([]core.Expense, summaryData) {
	expenses, _ := s.hub.Expenses()
	matched := view.Apply(expenses, sess.Filter)
	return matched, summaryData{
		Title: view.SummaryTitle(sess.Filter),
		Total: core.NewAmount(view.Total(matched)).DisplayWithSymbol(s.currency),
		Count: len(matched),
	}
}

func (s *Server) reportData(sess shell.Session, sel report.Selection) reportData {
	d := reportData{
		Selection:     sel,
		Generating:    sess.Generating,
		PDFAvailable:  s.reports != nil && s.reports.PDFAvailable(),
		SheetsEnabled: s.sheets != nil,
	}
	for _, m := range report.Modes {
		d.Modes = append(d.Modes, option{Value: string(m), Label: m.Label(), Selected: m == sel.Mode})
	}
	return d
}

func (s *Server) dashboardBody(sess shell.Session) dashboardBody {
	_, summary := s.filtered(sess)
	return dashboardBody{
		Filter:  newFilterData("dashboard", sess.Filter),
		Summary: summary,
		Report:  s.reportData(sess, report.DefaultSelection(s.svc.Now())),
	}
}

func (s *Server) toRow(e core.Expense) rowData {
	return rowData{
		ID:          e.ID,
		Name:        e.ExpenseName,
		Date:        e.Date,
		Amount:      e.Amount.DisplayWithSymbol(s.currency),
		AmountInput: e.Amount.String(),
		AddedBy:     e.AddedBy,
	}
}

// listBody positions the client on a valid page, storing the corrected
// page back when it had drifted past the end.
func (s *Server) listBody(client string, sess shell.Session) listBody {
	matched, summary := s.filtered(sess)
	rows, p := view.PageOf(view.SortByDateDesc(matched), sess.ListPage)
	if p.Page != sess.ListPage {
		sess = s.sessions.Update(client, func(cur shell.Session) shell.Session { return cur.SetListPage(p.Page) })
	}

	body := listBody{
		Filter:     newFilterData("list", sess.Filter),
		ShowFilter: sess.ShowListFilter,
		Summary:    summary,
		Pagination: p,
	}
	for _, e := range rows {
		body.Rows = append(body.Rows, s.toRow(e))
	}
	if sess.PendingDelete != "" {
		if e, ok := s.findExpense(sess.PendingDelete); ok {
			row := s.toRow(e)
			body.Pending = &row
		}
	}
	return body
}

func (s *Server) findExpense(id string) (core.Expense, bool) {
	expenses, _ := s.hub.Expenses()
	i := slices.IndexFunc(expenses, func(e core.Expense) bool { return e.ID == id })
	if i < 0 {
		return core.Expense{}, false
	}
	return expenses[i], true
}

func (s *Server) draftCache(ctx context.Context) *drafts.Cache {
	return drafts.NewCache(s.slots, drafts.Key(s.appID, draftOwner(identity.FromContext(ctx))), s.logger)
}

func (s *Server) draftsBody(rows []core.DraftRow) draftsBody {
	today := s.svc.Today()
	expenses, _ := s.hub.Expenses()
	templates := s.hub.Templates()
	recorded := view.RecordedOn(expenses, today)

	body := draftsBody{NoTemplates: len(templates) == 0}
	for _, row := range rows {
		body.Rows = append(body.Rows, s.draftRow(row, templates, recorded, today))
	}
	return body
}

func (s *Server) draftRow(row core.DraftRow, templates []core.Template, recorded map[string]bool, today string) draftRowData {
	opts := withCurrentName(view.Options(templates, recorded, row, today), row.ExpenseName)
	return draftRowData{Row: row, Options: opts, Recorded: row.Date == today && recorded[row.ExpenseName]}
}

// editRow offers the template names for an existing expense. Nothing is
// marked as recorded: the expense being edited is itself a recording.
func (s *Server) editRow(e core.Expense) editRowData {
	row := core.DraftRow{ExpenseName: e.ExpenseName, Date: e.Date}
	opts := withCurrentName(view.Options(s.hub.Templates(), nil, row, ""), e.ExpenseName)
	return editRowData{rowData: s.toRow(e), Options: opts}
}

// withCurrentName keeps name selectable when it no longer matches a
// template, e.g. after the template was deleted.
func withCurrentName(opts []view.TemplateOption, name string) []view.TemplateOption {
	if name != "" && !slices.ContainsFunc(opts, func(o view.TemplateOption) bool { return o.Selected }) {
		opts = append(opts, view.TemplateOption{Name: name, Selected: true})
	}
	return opts
}
