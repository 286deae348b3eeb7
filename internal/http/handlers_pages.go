package http

import (
	"net/http"

	"mysokha/internal/shell"
)

// navigate records the page in the client's session and returns the session.
func (s *Server) navigate(r *http.Request, p shell.Page) shell.Session {
	return s.sessions.Update(clientID(r.Context()), func(cur shell.Session) shell.Session { return cur.Navigate(p) })
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := s.navigate(r, shell.Dashboard)
	s.render(w, r, "dashboard.html", dashboardData{layoutData: newLayout(shell.Dashboard), Body: s.dashboardBody(sess)})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	sess := s.navigate(r, shell.List)
	s.render(w, r, "list.html", listData{layoutData: newLayout(shell.List), Body: s.listBody(clientID(r.Context()), sess)})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	s.navigate(r, shell.Add)
	rows := s.draftCache(r.Context()).Load(r.Context(), s.svc.Today())
	s.render(w, r, "add.html", addData{layoutData: newLayout(shell.Add), Body: s.draftsBody(s.withDefaultName(rows))})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.navigate(r, shell.Templates)
	s.render(w, r, "templates.html", templatesData{
		layoutData: newLayout(shell.Templates),
		Body:       templatesBody{Templates: s.hub.Templates()},
	})
}

// handleNavigate resolves a page by name; unknown names land on the dashboard.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	p := shell.ParsePage(r.PathValue("page"))
	for _, item := range shell.Nav {
		if item.Page == p {
			http.Redirect(w, r, item.Path, http.StatusSeeOther)
			return
		}
	}
}

func (s *Server) handleDashboardBody(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(clientID(r.Context()))
	s.render(w, r, "dashboard-body", s.dashboardBody(sess))
}

func (s *Server) handleListBody(w http.ResponseWriter, r *http.Request) {
	client := clientID(r.Context())
	s.render(w, r, "list-body", s.listBody(client, s.sessions.Get(client)))
}
