// Package shell holds the per-client UI state: which page is open, the
// active filter, the list position and the staged delete.
package shell

import (
	"time"

	"mysokha/internal/cache"
	"mysokha/internal/view"
)

type Page string

const (
	Dashboard Page = "dashboard"
	List      Page = "list"
	Add       Page = "add"
	Templates Page = "templates"
)

// NavItem is one entry of the desktop and mobile navigation.
type NavItem struct {
	Page  Page
	Label string
	Short string // mobile label
	Path  string
}

// Nav lists the pages in menu order.
var Nav = []NavItem{
	{Dashboard, "Dashboard", "Summary", "/"},
	{List, "Expense list", "List", "/list"},
	{Add, "Add expenses", "Add", "/add"},
	{Templates, "Manage names", "Names", "/templates"},
}

// ParsePage maps a name to a page, defaulting to the dashboard.
func ParsePage(s string) Page {
	for _, item := range Nav {
		if string(item.Page) == s {
			return item.Page
		}
	}
	return Dashboard
}

// Session is the UI state of one client.
type Session struct {
	Page           Page
	Filter         view.Filter
	ListPage       int
	PendingDelete  string
	ShowListFilter bool
	Generating     bool
}

// NewSession starts on the dashboard filtered to today.
func NewSession(now time.Time) Session {
	return Session{
		Page:     Dashboard,
		Filter:   view.DefaultFilter(view.Daily, now),
		ListPage: 1,
	}
}

// Navigate switches page. Any page can be reached from any other.
func (s Session) Navigate(p Page) Session {
	s.Page = p
	return s
}

// SetFilterType switches the filter type, resetting its value and the list page.
func (s Session) SetFilterType(t view.FilterType, now time.Time) Session {
	s.Filter = s.Filter.WithType(t, now)
	s.ListPage = 1
	return s
}

// SetFilterValue changes the value within the current type. The list page
// resets whenever the filter actually changes.
func (s Session) SetFilterValue(value string) Session {
	if value == s.Filter.Value {
		return s
	}
	s.Filter.Value = value
	s.ListPage = 1
	return s
}

// SetListPage moves to page; callers normalize it against the row count.
func (s Session) SetListPage(page int) Session {
	s.ListPage = page
	return s
}

func (s Session) ToggleListFilter() Session {
	s.ShowListFilter = !s.ShowListFilter
	return s
}

// RequestDelete stages id for confirmation.
func (s Session) RequestDelete(id string) Session {
	s.PendingDelete = id
	return s
}

// ConfirmDelete returns the staged id, if any, and clears the stage. The
// caller issues exactly one removal for a non-empty id.
func (s Session) ConfirmDelete() (Session, string) {
	id := s.PendingDelete
	s.PendingDelete = ""
	return s, id
}

// CancelDelete clears the stage.
func (s Session) CancelDelete() Session {
	s.PendingDelete = ""
	return s
}

// Sessions stores sessions by client id.
type Sessions struct {
	cache *cache.LRUCache[Session]
	now   func() time.Time
}

func NewSessions(maxClients int, ttl time.Duration, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{cache: cache.NewLRUCache[Session](maxClients, ttl), now: now}
}

// Cache exposes the backing cache for cleanup registration.
func (s *Sessions) Cache() *cache.LRUCache[Session] { return s.cache }

// Get returns the client's session, creating a fresh one if needed.
func (s *Sessions) Get(clientID string) Session {
	if sess, ok := s.cache.Get(clientID); ok {
		return sess
	}
	return NewSession(s.now())
}

// Update applies fn atomically and returns the stored session.
func (s *Sessions) Update(clientID string, fn func(Session) Session) Session {
	return s.cache.Update(clientID, func(cur Session, found bool) Session {
		if !found {
			cur = NewSession(s.now())
		}
		return fn(cur)
	})
}
