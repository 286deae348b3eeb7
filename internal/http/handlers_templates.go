package http

import (
	"errors"
	"net/http"

	"mysokha/internal/core"
	"mysokha/internal/store"
)

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "template-list", templatesBody{Templates: s.hub.Templates()})
}

func (s *Server) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	name := sanitizeInput(r.Form.Get("name"))
	if _, err := s.svc.AddTemplate(r.Context(), name); err != nil {
		if errors.Is(err, core.ErrEmptyTemplateName) {
			UnprocessableEntityError("Name is required").Write(w)
			return
		}
		InternalServerError("Saving failed, please retry").Write(w)
		return
	}
	s.respond(w, r, NewHTMXResponse().
		TriggerSuccessNotification("Added "+name).
		TriggerFormReset(),
		"template-list", templatesBody{Templates: s.hub.Templates()})
}

// handleDeleteTemplate removes a name. Expenses already recorded under it
// are left alone.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTemplate(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFoundError("Name no longer exists").Write(w)
			return
		}
		InternalServerError("Delete failed, please retry").Write(w)
		return
	}
	s.respond(w, r, NewHTMXResponse().TriggerSuccessNotification("Name removed"),
		"template-list", templatesBody{Templates: s.hub.Templates()})
}
