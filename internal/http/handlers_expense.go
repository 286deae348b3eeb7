package http

import (
	"errors"
	"net/http"
	"slices"

	"mysokha/internal/core"
	"mysokha/internal/log"
	"mysokha/internal/shell"
	"mysokha/internal/store"
	"mysokha/internal/view"
)

// handleFilter applies a filter change from either the dashboard or the
// list and re-renders that region. Changing the type resets the value.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	client := clientID(r.Context())
	now := s.svc.Now()

	sess := s.sessions.Update(client, func(cur shell.Session) shell.Session {
		t, ok := view.ParseFilterType(r.Form.Get("type"))
		if ok && t != cur.Filter.Type {
			return cur.SetFilterType(t, now)
		}
		if r.Form.Has("value") {
			return cur.SetFilterValue(sanitizeInput(r.Form.Get("value")))
		}
		return cur
	})

	if r.Form.Get("view") == "list" {
		s.render(w, r, "list-body", s.listBody(client, sess))
		return
	}
	s.render(w, r, "dashboard-body", s.dashboardBody(sess))
}

func (s *Server) handleListPage(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	client := clientID(r.Context())
	page := ParsePage(r.Form.Get("page"), 1)
	sess := s.sessions.Update(client, func(cur shell.Session) shell.Session { return cur.SetListPage(page) })
	s.render(w, r, "list-body", s.listBody(client, sess))
}

func (s *Server) handleToggleListFilter(w http.ResponseWriter, r *http.Request) {
	client := clientID(r.Context())
	sess := s.sessions.Update(client, shell.Session.ToggleListFilter)
	s.render(w, r, "list-body", s.listBody(client, sess))
}

func (s *Server) handleShowRow(w http.ResponseWriter, r *http.Request) {
	e, ok := s.findExpense(r.PathValue("id"))
	if !ok {
		NotFoundError("Expense not found").Write(w)
		return
	}
	s.render(w, r, "expense-row", s.toRow(e))
}

func (s *Server) handleEditRow(w http.ResponseWriter, r *http.Request) {
	e, ok := s.findExpense(r.PathValue("id"))
	if !ok {
		NotFoundError("Expense not found").Write(w)
		return
	}
	s.render(w, r, "expense-row-edit", s.editRow(e))
}

// handleUpdateExpense saves the inline editor. Amount input that is not a
// number is rejected before anything is written, as is a name that is
// neither a template nor the expense's current name.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		UnprocessableEntityError("Amount must be a number").Write(w)
		return
	}
	patch := core.ExpensePatch{ExpenseName: p.Get("expenseName"), Date: p.Get("date"), Amount: amount}
	if !s.selectableName(id, patch.ExpenseName) {
		UnprocessableEntityError("Choose an expense from the templates").Write(w)
		return
	}

	if err := s.svc.UpdateExpense(ctx, id, patch); err != nil {
		switch {
		case errors.Is(err, core.ErrEmptyExpenseName):
			UnprocessableEntityError("Name is required").Write(w)
		case errors.Is(err, core.ErrInvalidDate):
			UnprocessableEntityError("Date is not valid").Write(w)
		case errors.Is(err, core.ErrInvalidAmount):
			UnprocessableEntityError("Amount must be a number").Write(w)
		case errors.Is(err, store.ErrNotFound):
			NotFoundError("Expense no longer exists").Write(w)
		default:
			InternalServerError("Saving failed, please retry").Write(w)
		}
		return
	}

	e, ok := s.findExpense(id)
	if !ok {
		e = core.Expense{ID: id, ExpenseName: patch.ExpenseName, Date: patch.Date, Amount: patch.Amount}
	}
	s.respond(w, r, NewHTMXResponse().TriggerSuccessNotification("Expense updated"), "expense-row", s.toRow(e))
}

// selectableName reports whether name is offered by the editor for id.
// Empty names fall through to the service's own validation.
func (s *Server) selectableName(id, name string) bool {
	if name == "" || slices.ContainsFunc(s.hub.Templates(), func(t core.Template) bool { return t.Name == name }) {
		return true
	}
	e, ok := s.findExpense(id)
	return !ok || e.ExpenseName == name
}

// handleDeleteRequest stages the expense and shows the confirmation.
func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	client := clientID(r.Context())
	e, ok := s.findExpense(r.PathValue("id"))
	if !ok {
		NotFoundError("Expense not found").Write(w)
		return
	}
	s.sessions.Update(client, func(cur shell.Session) shell.Session { return cur.RequestDelete(e.ID) })
	s.render(w, r, "delete-confirm", s.toRow(e))
}

// handleDeleteConfirm removes the staged expense exactly once.
func (s *Server) handleDeleteConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := clientID(ctx)

	var id string
	sess := s.sessions.Update(client, func(cur shell.Session) shell.Session {
		next, staged := cur.ConfirmDelete()
		id = staged
		return next
	})

	b := NewHTMXResponse()
	if id != "" {
		if err := s.svc.DeleteExpense(ctx, id); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Delete failed", log.FieldRecordID, id, log.FieldError, err)
			b.TriggerErrorNotification("Delete failed, please retry")
		} else {
			b.TriggerSuccessNotification("Expense deleted")
		}
	}
	s.respond(w, r, b, "list-body", s.listBody(client, sess))
}

func (s *Server) handleDeleteCancel(w http.ResponseWriter, r *http.Request) {
	s.sessions.Update(clientID(r.Context()), shell.Session.CancelDelete)
	NewHTMXResponse().BodyHTML([]byte(`<div id="modal"></div>`)).Write(w)
}
