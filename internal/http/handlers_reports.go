package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"mysokha/internal/identity"
	"mysokha/internal/log"
	"mysokha/internal/report"
	"mysokha/internal/shell"
)

// beginGenerating sets the client's generating flag. It returns false when
// a report is already being produced for this client; otherwise done must
// be deferred to clear the flag whatever happens.
func (s *Server) beginGenerating(client string) (ok bool, done func()) {
	s.sessions.Update(client, func(cur shell.Session) shell.Session {
		if cur.Generating {
			return cur
		}
		ok = true
		cur.Generating = true
		return cur
	})
	if !ok {
		return false, func() {}
	}
	return true, func() {
		s.sessions.Update(client, func(cur shell.Session) shell.Session {
			cur.Generating = false
			return cur
		})
	}
}

// handleReportForm re-renders the downloader, e.g. when the mode changes.
func (s *Server) handleReportForm(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(clientID(r.Context()))
	sel := ParseSelection(r.URL.Query(), report.DefaultSelection(s.svc.Now()))
	s.render(w, r, "report-form", s.reportData(sess, sel))
}

// handleGenerateReport renders the selected period. htmx callers get an
// HX-Redirect to a short-lived download link so the page stays put; plain
// form posts receive the file directly.
func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	if s.reports == nil {
		NotFoundError("Reports are not available").Write(w)
		return
	}
	format, ok := report.ParseFormat(r.Form.Get("format"))
	if !ok {
		BadRequestError("Unknown report format").Write(w)
		return
	}

	ok, done := s.beginGenerating(clientID(ctx))
	if !ok {
		ConflictError("A report is already being generated").Write(w)
		return
	}
	defer done()

	now := s.svc.Now()
	sel := ParseSelection(r.Form, report.DefaultSelection(now))
	expenses, version := s.hub.Expenses()

	res, err := s.reports.Generate(ctx, format, expenses, version, sel, now)
	if err != nil {
		switch {
		case errors.Is(err, report.ErrNoData):
			NewHTMXResponse().NoSwap().TriggerWarningNotification("No expenses in the selected period").Write(w)
		case errors.Is(err, report.ErrFontMissing):
			s.metrics.reportsFailed.Add(1)
			ErrorResponse(http.StatusServiceUnavailable, "PDF export needs a report font, please use the spreadsheet").Write(w)
		default:
			s.metrics.reportsFailed.Add(1)
			InternalServerError("Report generation failed, please retry").Write(w)
		}
		return
	}
	s.metrics.reportsGenerated.Add(1)

	if r.Header.Get("HX-Request") == "" {
		serveReport(w, res)
		return
	}

	token := uuid.NewString()
	s.downloads.Set(token, res)
	NewHTMXResponse().
		NoSwap().
		Redirect("/reports/files/"+token).
		TriggerSuccessNotification(fmt.Sprintf("%s ready (%d %s)", res.Title, res.Count, plural(res.Count, "expense", "expenses"))).
		Write(w)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, ok := s.downloads.Get(r.PathValue("token"))
	if !ok {
		NotFoundError("This download has expired, please generate the report again").Write(w)
		return
	}
	serveReport(w, res)
}

func serveReport(w http.ResponseWriter, res report.Result) {
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

// handlePublishSheets writes the summary and pivot tables of the selected
// period to the configured spreadsheet.
func (s *Server) handlePublishSheets(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	if s.sheets == nil {
		NotFoundError("Google Sheets publishing is not configured").Write(w)
		return
	}

	ok, done := s.beginGenerating(clientID(ctx))
	if !ok {
		ConflictError("A report is already being generated").Write(w)
		return
	}
	defer done()

	now := s.svc.Now()
	sel := ParseSelection(r.Form, report.DefaultSelection(now))
	expenses, _ := s.hub.Expenses()
	selected := report.Select(expenses, sel, now)
	if len(selected) == 0 {
		NewHTMXResponse().NoSwap().TriggerWarningNotification("No expenses in the selected period").Write(w)
		return
	}

	title := report.Title(sel, now)
	if err := s.sheets.Publish(ctx, report.BuildSummary(title, selected), report.BuildPivot(title, selected)); err != nil {
		s.metrics.reportsFailed.Add(1)
		log.FromContext(ctx).ErrorContext(ctx, "Publishing report to Google Sheets failed", log.NewFields().
			WithOperation(log.OpPublish).
			WithError(err, log.ErrorTypeNetwork).
			ToSlice()...)
		InternalServerError("Publishing to Google Sheets failed").Write(w)
		return
	}
	s.metrics.reportsGenerated.Add(1)

	log.FromContext(ctx).InfoContext(ctx, "Report published to Google Sheets",
		log.FieldOperation, log.OpPublish,
		log.FieldCount, len(selected),
		"added_by", identity.FromContext(ctx).AddedBy())
	NewHTMXResponse().NoSwap().TriggerSuccessNotification("Published " + title).Write(w)
}
