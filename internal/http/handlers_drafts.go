package http

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"mysokha/internal/core"
	"mysokha/internal/drafts"
	"mysokha/internal/identity"
	"mysokha/internal/log"
	"mysokha/internal/view"
)

// withDefaultName gives unnamed rows the suggested template for display.
func (s *Server) withDefaultName(rows []core.DraftRow) []core.DraftRow {
	return drafts.FillDefaultName(rows, s.svc.DefaultName())
}

func (s *Server) handleDraftsBody(w http.ResponseWriter, r *http.Request) {
	rows := s.draftCache(r.Context()).Load(r.Context(), s.svc.Today())
	s.render(w, r, "drafts-body", s.draftsBody(s.withDefaultName(rows)))
}

func (s *Server) handleAddDraftRow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := s.svc.Today()

	b := NewHTMXResponse()
	rows, err := s.draftCache(ctx).Update(ctx, today, func(cur []core.DraftRow) ([]core.DraftRow, error) {
		return drafts.AddRow(s.withDefaultName(cur), s.svc.DefaultName(), today), nil
	})
	if err != nil {
		b.TriggerWarningNotification("Drafts could not be stored on the server")
	}
	s.respond(w, r, b, "drafts-body", s.draftsBody(rows))
}

func (s *Server) handleDeleteDraftRow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	b := NewHTMXResponse()
	rows, err := s.draftCache(ctx).Update(ctx, s.svc.Today(), func(cur []core.DraftRow) ([]core.DraftRow, error) {
		return drafts.DeleteRow(cur, id), nil
	})
	if err != nil {
		b.TriggerWarningNotification("Drafts could not be stored on the server")
	}
	s.respond(w, r, b, "drafts-body", s.draftsBody(s.withDefaultName(rows)))
}

// handleEditDraftCell writes one edited field through to the draft cache
// and re-renders the row. Amount input that is not a number leaves the
// stored value untouched.
func (s *Server) handleEditDraftCell(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	today := s.svc.Today()
	b := NewHTMXResponse()
	rows, err := s.draftCache(ctx).Update(ctx, today, func(cur []core.DraftRow) ([]core.DraftRow, error) {
		return drafts.EditCell(s.withDefaultName(cur), id, p.Get("field"), p.Get("value"))
	})
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		b.Status(http.StatusUnprocessableEntity).TriggerErrorNotification("Amount must be a number")
	case errors.Is(err, drafts.ErrUnknownField):
		BadRequestError("Unknown field").Write(w)
		return
	case err != nil:
		b.TriggerWarningNotification("Drafts could not be stored on the server")
	}
	rows = s.withDefaultName(rows)

	i := slices.IndexFunc(rows, func(row core.DraftRow) bool { return row.ID == id })
	if i < 0 {
		// row vanished, e.g. submitted from another tab
		s.respond(w, r, b.Retarget("#drafts", "outerHTML"), "drafts-body", s.draftsBody(rows))
		return
	}
	expenses, _ := s.hub.Expenses()
	row := s.draftRow(rows[i], s.hub.Templates(), view.RecordedOn(expenses, today), today)
	s.respond(w, r, b, "draft-row", row)
}

// handleSubmitDrafts saves every complete row. Saved rows leave the drafts;
// blocked, failed and incomplete rows stay for another try.
func (s *Server) handleSubmitDrafts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := identity.FromContext(ctx)

	res, err := s.svc.SubmitDrafts(ctx, s.draftCache(ctx), id.AddedBy())
	saved, blocked, failed := res.Saved(), res.Blocked(), res.Failed()
	s.metrics.expensesSaved.Add(int64(saved))
	s.metrics.expensesBlocked.Add(int64(blocked))
	s.metrics.expensesFailed.Add(int64(failed))

	log.FromContext(ctx).InfoContext(ctx, "Batch submitted",
		log.FieldOperation, log.OpSubmit,
		"saved", saved, "blocked", blocked, "failed", failed)

	b := NewHTMXResponse()
	var parts []string
	if saved > 0 {
		parts = append(parts, fmt.Sprintf("Saved %d %s.", saved, plural(saved, "expense", "expenses")))
	}
	if blocked > 0 {
		parts = append(parts, "Already recorded today: "+strings.Join(res.BlockedNames(), ", ")+".")
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d %s could not be saved, please retry.", failed, plural(failed, "row", "rows")))
	}
	msg := strings.Join(parts, " ")
	switch {
	case failed > 0:
		b.TriggerErrorNotification(msg)
	case blocked > 0:
		b.TriggerWarningNotification(msg)
	case saved > 0:
		b.TriggerSuccessNotification(msg)
	default:
		b.TriggerNotification(NotificationInfo, "Nothing to save yet: each row needs a name, an amount and a date.", 4000)
	}
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Storing remaining drafts failed", log.FieldError, err)
	}

	s.respond(w, r, b, "drafts-body", s.draftsBody(s.withDefaultName(res.Remaining)))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
