package shell

import (
	"testing"
	"time"

	"mysokha/internal/view"
)

var now = time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

func TestParsePage(t *testing.T) {
	cases := map[string]Page{"list": List, "add": Add, "templates": Templates, "dashboard": Dashboard, "": Dashboard, "admin": Dashboard}
	for in, want := range cases {
		if got := ParsePage(in); got != want {
			t.Fatalf("ParsePage(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNavigateUnguarded(t *testing.T) {
	s := NewSession(now)
	for _, item := range Nav {
		for _, next := range Nav {
			if got := s.Navigate(item.Page).Navigate(next.Page).Page; got != next.Page {
				t.Fatalf("%s -> %s landed on %s", item.Page, next.Page, got)
			}
		}
	}
}

func TestDeleteConfirmation(t *testing.T) {
	removals := 0
	remove := func(id string) {
		if id != "" {
			removals++
		}
	}

	s := NewSession(now).RequestDelete("e1").CancelDelete()
	s, id := s.ConfirmDelete()
	remove(id)
	if removals != 0 || s.PendingDelete != "" {
		t.Fatalf("cancel must not remove anything, removals=%d", removals)
	}

	s = s.RequestDelete("e2")
	s, id = s.ConfirmDelete()
	remove(id)
	if removals != 1 || id != "e2" || s.PendingDelete != "" {
		t.Fatalf("confirm must remove exactly e2 once, removals=%d id=%s", removals, id)
	}

	_, id = s.ConfirmDelete()
	remove(id)
	if removals != 1 {
		t.Fatalf("second confirm without a stage must be a no-op")
	}
}

func TestFilterChangesResetListPage(t *testing.T) {
	s := NewSession(now).SetListPage(4)
	if s = s.SetFilterValue(s.Filter.Value); s.ListPage != 4 {
		t.Fatalf("same value must not reset the page")
	}
	if s = s.SetFilterValue("2025-01-14"); s.ListPage != 1 {
		t.Fatalf("new value must reset the page")
	}
	s = s.SetListPage(3).SetFilterType(view.Monthly, now)
	if s.ListPage != 1 || s.Filter != (view.Filter{Type: view.Monthly, Value: "2025-01"}) {
		t.Fatalf("type switch must reset value and page, got %+v", s)
	}
}

func TestSessionsStore(t *testing.T) {
	store := NewSessions(10, time.Hour, func() time.Time { return now })
	if got := store.Get("c1"); got.Page != Dashboard || got.Filter.Value != "2025-01-15" {
		t.Fatalf("unexpected fresh session %+v", got)
	}
	store.Update("c1", func(s Session) Session { return s.Navigate(List) })
	if store.Get("c1").Page != List {
		t.Fatalf("update not persisted")
	}
	if store.Get("c2").Page != Dashboard {
		t.Fatalf("sessions leak across clients")
	}
}
