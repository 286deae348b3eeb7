package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"mysokha/internal/cache"
	"mysokha/internal/core"
	"mysokha/internal/drafts"
	"mysokha/internal/identity"
	"mysokha/internal/live"
	"mysokha/internal/log"
	"mysokha/internal/middleware/trace"
	"mysokha/internal/report"
	"mysokha/internal/services"
	"mysokha/internal/shell"
	"mysokha/internal/store"
	"mysokha/internal/store/memory"
	"mysokha/internal/view"
)

const testAppID = "test-app"

type harness struct {
	t      *testing.T
	srv    *Server
	st     *memory.Store
	svc    *services.ExpenseService
	slot   *drafts.MemorySlot
	paths  store.Paths
	client string
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	st := memory.New()
	paths := store.Paths{AppID: testAppID}
	hub := live.NewHub(st, paths, log.Discard())
	if err := hub.RefreshAll(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	svc := services.NewExpenseService(st, hub, nil, time.UTC, log.Discard())
	slot := drafts.NewMemorySlot()

	deps := Deps{
		Service:            svc,
		Sessions:           shell.NewSessions(100, time.Hour, func() time.Time { return time.Now().UTC() }),
		Verifier:           identity.NewVerifier("", "", log.Discard()),
		Drafts:             slot,
		AppID:              testAppID,
		Reports:            report.NewGenerator(report.Config{}, log.Discard()),
		Caches:             cache.NewManager(log.Discard()),
		CurrencySymbol:     "៛",
		RateLimitPerMinute: 1000,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv := NewServer(":0", deps, log.Discard())
	if srv.templates == nil {
		t.Fatal("templates failed to parse")
	}
	return &harness{t: t, srv: srv, st: st, svc: svc, slot: slot, paths: paths, client: "client-1"}
}

func (h *harness) do(method, target string, form url.Values, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.AddCookie(&http.Cookie{Name: identity.ClientCookie, Value: h.client})
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (h *harness) seed(name string, amount int64, date string) string {
	h.t.Helper()
	ctx := context.Background()
	e := core.Expense{ExpenseName: name, Amount: core.AmountFromInt(amount), Date: date, CreatedAt: 1, AddedBy: "seed"}
	id, err := h.st.Push(ctx, h.paths.Expenses(), e.Document())
	if err != nil {
		h.t.Fatalf("seed: %v", err)
	}
	if err := h.svc.Hub().RefreshAll(ctx); err != nil {
		h.t.Fatalf("refresh: %v", err)
	}
	return id
}

func (h *harness) expenses() []core.Expense {
	out, _ := h.svc.Hub().Expenses()
	return out
}

func (h *harness) session() shell.Session {
	return h.srv.sessions.Get(h.client)
}

func (h *harness) draftCache() *drafts.Cache {
	return drafts.NewCache(h.slot, drafts.Key(testAppID, h.client), log.Discard())
}

func (h *harness) drafts() []core.DraftRow {
	return h.draftCache().Load(context.Background(), h.svc.Today())
}

func (h *harness) saveDrafts(rows ...core.DraftRow) {
	h.t.Helper()
	if err := h.draftCache().Save(context.Background(), rows); err != nil {
		h.t.Fatalf("save drafts: %v", err)
	}
}

func trigger(rr *httptest.ResponseRecorder) string {
	return rr.Header().Get("HX-Trigger")
}

func TestPagesRender(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		path    string
		heading string
		page    shell.Page
	}{
		{"/", "<h1>Summary</h1>", shell.Dashboard},
		{"/list", "<h1>Expense list</h1>", shell.List},
		{"/add", "<h1>Add expenses</h1>", shell.Add},
		{"/templates", "<h1>Manage names</h1>", shell.Templates},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := h.do(http.MethodGet, tt.path, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			body := rr.Body.String()
			if !strings.Contains(body, tt.heading) {
				t.Fatalf("body missing %q", tt.heading)
			}
			if !strings.Contains(body, `class="mobile-nav"`) || !strings.Contains(body, `class="desktop-nav"`) {
				t.Fatal("both navigations must render")
			}
			if rr.Header().Get("Content-Security-Policy") == "" || rr.Header().Get(trace.RequestIDHeader) == "" {
				t.Fatal("middleware headers missing")
			}
			if got := h.session().Page; got != tt.page {
				t.Fatalf("session page = %s, want %s", got, tt.page)
			}
		})
	}
}

func TestNavigateUnknownPage(t *testing.T) {
	h := newHarness(t)
	for name, want := range map[string]string{"list": "/list", "admin": "/", "templates": "/templates"} {
		rr := h.do(http.MethodGet, "/go/"+name, nil)
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != want {
			t.Fatalf("/go/%s -> %d %q, want %q", name, rr.Code, rr.Header().Get("Location"), want)
		}
	}
}

func TestClientCookieIssued(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rr, req)

	found := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == identity.ClientCookie && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a client id cookie")
	}
}

func TestHealthReadyMetrics(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz: %d %s", rr.Code, rr.Body.String())
	}

	rr = h.do(http.MethodGet, "/readyz", nil)
	var ready struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &ready); err != nil {
		t.Fatalf("readyz json: %v", err)
	}
	if rr.Code != http.StatusOK || ready.Status != "ready" || ready.Checks["store"] != "ok" {
		t.Fatalf("readyz: %d %+v", rr.Code, ready)
	}

	rr = h.do(http.MethodGet, "/metrics", nil)
	for _, want := range []string{"http_requests_total", "expenses_saved_total", "reports_generated_total", "uptime_seconds"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("db locked") }
	})
	rr := h.do(http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "db locked") {
		t.Fatalf("readyz: %d %s", rr.Code, rr.Body.String())
	}
}

func TestFilterAndPagination(t *testing.T) {
	h := newHarness(t)
	now := h.svc.Now()
	month := now.Format("2006-01")
	for i := 0; i < 25; i++ {
		h.seed("Rice", 1000, month+"-01")
	}

	rr := h.do(http.MethodPost, "/ui/filter", url.Values{"view": {"list"}, "type": {"monthly"}, "value": {"ignored"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("filter status = %d", rr.Code)
	}
	sess := h.session()
	if sess.Filter.Type != view.Monthly || sess.Filter.Value != month {
		t.Fatalf("type change must reset value, got %+v", sess.Filter)
	}
	if !strings.Contains(rr.Body.String(), `id="list-body"`) {
		t.Fatal("list filter must re-render the list")
	}

	h.do(http.MethodPost, "/ui/list/page", url.Values{"page": {"3"}})
	if got := h.session().ListPage; got != 3 {
		t.Fatalf("list page = %d, want 3", got)
	}

	rr = h.do(http.MethodPost, "/ui/filter", url.Values{"view": {"dashboard"}, "type": {"monthly"}, "value": {"1999-01"}})
	if got := h.session().ListPage; got != 1 {
		t.Fatalf("filter change must reset the page, got %d", got)
	}
	if !strings.Contains(rr.Body.String(), `id="dashboard-body"`) {
		t.Fatal("dashboard filter must re-render the dashboard body")
	}
}

func TestListPagePastEndResets(t *testing.T) {
	h := newHarness(t)
	today := h.svc.Today()
	for i := 0; i < 12; i++ {
		h.seed("Fuel", 500, today)
	}
	rr := h.do(http.MethodPost, "/ui/list/page", url.Values{"page": {"9"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := h.session().ListPage; got != 1 {
		t.Fatalf("page past the end must reset to 1, got %d", got)
	}
	if strings.Count(rr.Body.String(), `<tr id="expense-`) != view.PageSize {
		t.Fatalf("expected a full first page")
	}
}

func TestToggleListFilter(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/ui/list/toggle-filter", url.Values{})
	if !h.session().ShowListFilter {
		t.Fatal("filter panel should be visible")
	}
	rr := h.do(http.MethodPost, "/ui/list/toggle-filter", url.Values{})
	if h.session().ShowListFilter || !strings.Contains(rr.Body.String(), "filter-panel collapsed") {
		t.Fatal("filter panel should be hidden again")
	}
}

func TestInlineEdit(t *testing.T) {
	h := newHarness(t)
	today := h.svc.Today()
	id := h.seed("Rice", 5000, today)

	rr := h.do(http.MethodGet, "/expenses/"+id+"/edit", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `name="amount"`) {
		t.Fatalf("edit row: %d", rr.Code)
	}

	rr = h.do(http.MethodPatch, "/expenses/"+id, url.Values{"expenseName": {"Rice"}, "date": {today}, "amount": {"abc"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid amount status = %d", rr.Code)
	}
	if got := h.expenses()[0].Amount.String(); got != "5000" {
		t.Fatalf("invalid input must not write, amount = %s", got)
	}

	req := httptest.NewRequest(http.MethodPatch, "/expenses/"+id,
		strings.NewReader(`{"expenseName":"Rice","date":"`+today+`","amount":7500}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: identity.ClientCookie, Value: h.client})
	rr = httptest.NewRecorder()
	h.srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("save status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := h.expenses()[0].Amount.String(); got != "7500" {
		t.Fatalf("amount = %s, want 7500", got)
	}
	if !strings.Contains(rr.Body.String(), "7,500") || !strings.Contains(trigger(rr), "Expense updated") {
		t.Fatalf("row should show the new amount: %s", rr.Body.String())
	}

	rr = h.do(http.MethodGet, "/expenses/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing row status = %d", rr.Code)
	}
}

func TestEditRowPicksFromTemplates(t *testing.T) {
	h := newHarness(t)
	today := h.svc.Today()
	h.do(http.MethodPost, "/templates", url.Values{"name": {"Rice"}})
	h.do(http.MethodPost, "/templates", url.Values{"name": {"Fuel"}})
	id := h.seed("Water", 1000, today)

	rr := h.do(http.MethodGet, "/expenses/"+id+"/edit", nil)
	body := rr.Body.String()
	if rr.Code != http.StatusOK || !strings.Contains(body, `<select name="expenseName"`) {
		t.Fatalf("edit row should offer a select: %d %s", rr.Code, body)
	}
	if strings.Contains(body, `<input type="text" name="expenseName"`) {
		t.Fatal("edit row must not take a free-text name")
	}
	for _, want := range []string{`<option value="Rice">`, `<option value="Fuel">`, `<option value="Water" selected>`} {
		if !strings.Contains(body, want) {
			t.Fatalf("edit row missing %s: %s", want, body)
		}
	}

	rr = h.do(http.MethodPatch, "/expenses/"+id, url.Values{"expenseName": {"Caviar"}, "date": {today}, "amount": {"1000"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown name status = %d", rr.Code)
	}
	if got := h.expenses()[0].ExpenseName; got != "Water" {
		t.Fatalf("name = %q, must stay Water", got)
	}

	rr = h.do(http.MethodPatch, "/expenses/"+id, url.Values{"expenseName": {"Fuel"}, "date": {today}, "amount": {"1000"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("template name status = %d", rr.Code)
	}
	if got := h.expenses()[0].ExpenseName; got != "Fuel" {
		t.Fatalf("name = %q, want Fuel", got)
	}
}

func TestDeleteConfirmation(t *testing.T) {
	h := newHarness(t)
	today := h.svc.Today()
	first := h.seed("Rice", 100, today)
	h.seed("Fuel", 200, today)

	rr := h.do(http.MethodPost, "/expenses/"+first+"/delete", url.Values{})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `id="modal"`) {
		t.Fatalf("request delete: %d", rr.Code)
	}
	if h.session().PendingDelete != first {
		t.Fatal("delete should be staged")
	}

	h.do(http.MethodPost, "/expenses/delete/cancel", url.Values{})
	if len(h.expenses()) != 2 || h.session().PendingDelete != "" {
		t.Fatal("cancel must not remove anything")
	}

	h.do(http.MethodPost, "/expenses/"+first+"/delete", url.Values{})
	rr = h.do(http.MethodPost, "/expenses/delete/confirm", url.Values{})
	if rr.Code != http.StatusOK || !strings.Contains(trigger(rr), "Expense deleted") {
		t.Fatalf("confirm: %d %s", rr.Code, trigger(rr))
	}
	if len(h.expenses()) != 1 || h.expenses()[0].ID == first {
		t.Fatalf("exactly the staged expense must be removed: %+v", h.expenses())
	}

	rr = h.do(http.MethodPost, "/expenses/delete/confirm", url.Values{})
	if len(h.expenses()) != 1 || trigger(rr) != "" {
		t.Fatal("confirming with nothing staged must not remove anything")
	}
}

func TestDraftsLifecycle(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodGet, "/add", nil)
	if rr.Code != http.StatusOK || strings.Count(rr.Body.String(), `<tr id="draft-`) != 1 {
		t.Fatalf("add page should start with one row")
	}

	h.do(http.MethodPost, "/drafts/rows", url.Values{})
	rows := h.drafts()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	id := rows[0].ID

	rr = h.do(http.MethodPatch, "/drafts/rows/"+id, url.Values{"field": {"amount"}, "value": {"12a"}})
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), `id="draft-`+id) {
		t.Fatalf("invalid amount: %d", rr.Code)
	}
	if h.drafts()[0].Amount != "" {
		t.Fatal("invalid amount must not be stored")
	}

	h.do(http.MethodPatch, "/drafts/rows/"+id, url.Values{"field": {"expenseName"}, "value": {"Rice"}})
	h.do(http.MethodPatch, "/drafts/rows/"+id, url.Values{"field": {"amount"}, "value": {"1,500"}})
	if got := h.drafts()[0]; got.ExpenseName != "Rice" || got.Amount != "1500" {
		t.Fatalf("row = %+v", got)
	}

	rr = h.do(http.MethodPatch, "/drafts/rows/"+id, url.Values{"field": {"color"}, "value": {"red"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rr.Code)
	}

	rr = h.do(http.MethodPost, "/drafts/submit", url.Values{})
	if rr.Code != http.StatusOK || !strings.Contains(trigger(rr), "Saved 1 expense.") {
		t.Fatalf("submit: %d %s", rr.Code, trigger(rr))
	}
	saved := h.expenses()
	if len(saved) != 1 || saved[0].ExpenseName != "Rice" || saved[0].AddedBy != "anon:"+h.client {
		t.Fatalf("saved = %+v", saved)
	}
	left := h.drafts()
	if len(left) != 1 || left[0].ID != rows[1].ID {
		t.Fatalf("the incomplete row must stay, got %+v", left)
	}

	h.do(http.MethodDelete, "/drafts/rows/"+left[0].ID, nil)
	if rows := h.drafts(); len(rows) != 1 || rows[0].ID == left[0].ID {
		t.Fatalf("after deleting the last row a fresh default row is loaded, got %+v", rows)
	}
}

func TestConcurrentDraftEditsAllPersist(t *testing.T) {
	h := newHarness(t)
	today := h.svc.Today()

	const n = 30
	rows := make([]core.DraftRow, n)
	for i := range rows {
		rows[i] = core.DraftRow{ID: fmt.Sprintf("r%d", i), ExpenseName: "Rice", Date: today}
	}
	h.saveDrafts(rows...)

	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr := h.do(http.MethodPatch, fmt.Sprintf("/drafts/rows/r%d", i), url.Values{"field": {"amount"}, "value": {"100"}})
			codes[i] = rr.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	got := h.drafts()
	if len(got) != n {
		t.Fatalf("rows = %d, want %d", len(got), n)
	}
	for _, row := range got {
		if row.Amount != "100" {
			t.Fatalf("row %s amount = %q, want 100", row.ID, row.Amount)
		}
	}
}

func TestInitialTokenKeepsDraftsPerBrowser(t *testing.T) {
	initial, err := identity.NewVerifier("s3cret", "", log.Discard()).Issue("household", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	h := newHarness(t, func(d *Deps) {
		d.Verifier = identity.NewVerifier("s3cret", initial, log.Discard())
	})

	h.client = "browser-a"
	h.do(http.MethodPost, "/drafts/rows", url.Values{})
	h.do(http.MethodPost, "/drafts/rows", url.Values{})
	if rows := h.drafts(); len(rows) != 3 {
		t.Fatalf("browser A rows = %d, want 3", len(rows))
	}

	h.client = "browser-b"
	rr := h.do(http.MethodGet, "/ui/drafts", nil)
	if n := strings.Count(rr.Body.String(), `<tr id="draft-`); n != 1 {
		t.Fatalf("browser B sees %d rows, want its own single default row", n)
	}

	h.client = "browser-a"
	id := h.drafts()[0].ID
	h.do(http.MethodPatch, "/drafts/rows/"+id, url.Values{"field": {"expenseName"}, "value": {"Rice"}})
	h.do(http.MethodPatch, "/drafts/rows/"+id, url.Values{"field": {"amount"}, "value": {"500"}})
	h.do(http.MethodPost, "/drafts/submit", url.Values{})
	saved := h.expenses()
	if len(saved) != 1 || saved[0].AddedBy != "household" {
		t.Fatalf("saved = %+v, want one expense added by the initial token subject", saved)
	}
}

func TestSubmitBlocksAlreadyRecordedToday(t *testing.T) {
	h := newHarness(t)
	today := h.svc.Today()
	h.seed("Rice", 100, today)

	row := drafts.NewRow("", today)
	h.saveDrafts(row)
	id := row.ID
	h.do(http.MethodPatch, "/drafts/rows/"+id, url.Values{"field": {"expenseName"}, "value": {"Rice"}})
	rr := h.do(http.MethodPatch, "/drafts/rows/"+id, url.Values{"field": {"amount"}, "value": {"300"}})
	if !strings.Contains(rr.Body.String(), "Already recorded today") {
		t.Fatal("row should be marked as recorded today")
	}

	rr = h.do(http.MethodPost, "/drafts/submit", url.Values{})
	if !strings.Contains(trigger(rr), "Already recorded today: Rice.") || !strings.Contains(trigger(rr), `"warning"`) {
		t.Fatalf("trigger = %s", trigger(rr))
	}
	if len(h.expenses()) != 1 {
		t.Fatal("blocked row must not be written")
	}
	if left := h.drafts(); len(left) != 1 || left[0].ID != id {
		t.Fatalf("blocked row must stay as a draft: %+v", left)
	}
}

func TestSubmitNothingReady(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/drafts/submit", url.Values{})
	if !strings.Contains(trigger(rr), "Nothing to save yet") {
		t.Fatalf("trigger = %s", trigger(rr))
	}
}

func TestTemplates(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/templates", url.Values{"name": {"  Rice  "}})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "<span>Rice</span>") {
		t.Fatalf("add template: %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(trigger(rr), "form:reset") {
		t.Fatal("form should reset after adding")
	}

	rr = h.do(http.MethodPost, "/templates", url.Values{"name": {"   "}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank name status = %d", rr.Code)
	}

	tpl := h.svc.Hub().Templates()
	if len(tpl) != 1 {
		t.Fatalf("templates = %+v", tpl)
	}

	// the add page now offers the name and starts rows with it
	rr = h.do(http.MethodGet, "/add", nil)
	if !strings.Contains(rr.Body.String(), `<option value="Rice" selected>Rice</option>`) {
		t.Fatalf("draft row should default to the template: %s", rr.Body.String())
	}

	rr = h.do(http.MethodDelete, "/templates/"+tpl[0].ID, nil)
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "<span>Rice</span>") {
		t.Fatalf("delete template: %d", rr.Code)
	}
}

func TestReportDownload(t *testing.T) {
	h := newHarness(t)
	today := h.svc.Today()
	h.seed("Rice", 1000, today)

	form := url.Values{"format": {"xlsx"}, "mode": {"current_month"}}
	rr := h.do(http.MethodPost, "/reports", form, "HX-Request", "true")
	if rr.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rr.Code)
	}
	link := rr.Header().Get("HX-Redirect")
	if !strings.HasPrefix(link, "/reports/files/") {
		t.Fatalf("HX-Redirect = %q", link)
	}
	if h.session().Generating {
		t.Fatal("generating flag must be cleared")
	}

	rr = h.do(http.MethodGet, link, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("download status = %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != report.XLSX.ContentType() {
		t.Fatalf("content type = %q", rr.Header().Get("Content-Type"))
	}
	want := `attachment; filename="` + report.FileName(h.svc.Now(), report.XLSX) + `"`
	if rr.Header().Get("Content-Disposition") != want {
		t.Fatalf("disposition = %q, want %q", rr.Header().Get("Content-Disposition"), want)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("reports must not be cached")
	}

	// plain form posts get the file directly
	rr = h.do(http.MethodPost, "/reports", form)
	if rr.Code != http.StatusOK || rr.Body.Len() == 0 || rr.Header().Get("Content-Disposition") == "" {
		t.Fatalf("direct download: %d", rr.Code)
	}

	rr = h.do(http.MethodGet, "/reports/files/unknown", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expired link status = %d", rr.Code)
	}
}

func TestReportFailures(t *testing.T) {
	h := newHarness(t)
	h.seed("Rice", 1000, h.svc.Today())

	rr := h.do(http.MethodPost, "/reports", url.Values{"format": {"pdf"}}, "HX-Request", "true")
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(trigger(rr), "report font") {
		t.Fatalf("pdf without font: %d %s", rr.Code, trigger(rr))
	}

	rr = h.do(http.MethodPost, "/reports", url.Values{"format": {"xlsx"}, "mode": {"date_range"}, "start": {"1999-01-01"}, "end": {"1999-01-31"}}, "HX-Request", "true")
	if rr.Code != http.StatusOK || !strings.Contains(trigger(rr), "No expenses in the selected period") || rr.Header().Get("HX-Redirect") != "" {
		t.Fatalf("empty selection: %d %s", rr.Code, trigger(rr))
	}

	rr = h.do(http.MethodPost, "/reports", url.Values{"format": {"docx"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown format status = %d", rr.Code)
	}

	if h.session().Generating {
		t.Fatal("generating flag must be cleared after failures")
	}
	if got := h.srv.metrics.reportsFailed.Load(); got != 1 {
		t.Fatalf("reports failed = %d, want 1", got)
	}
}

func TestReportAlreadyGenerating(t *testing.T) {
	h := newHarness(t)
	h.seed("Rice", 1000, h.svc.Today())
	h.srv.sessions.Update(h.client, func(s shell.Session) shell.Session {
		s.Generating = true
		return s
	})

	rr := h.do(http.MethodPost, "/reports", url.Values{"format": {"xlsx"}}, "HX-Request", "true")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	if !h.session().Generating {
		t.Fatal("a rejected request must not clear another request's flag")
	}
}

func TestReportForm(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/ui/report?mode=date_range", nil)
	if !strings.Contains(rr.Body.String(), `name="start"`) || strings.Contains(rr.Body.String(), `name="month"`) {
		t.Fatalf("date range form: %s", rr.Body.String())
	}
	rr = h.do(http.MethodGet, "/ui/report?mode=select_month", nil)
	if !strings.Contains(rr.Body.String(), `name="month"`) {
		t.Fatal("month picker expected")
	}
}

type fakePublisher struct {
	summary report.Summary
	pivot   report.Pivot
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, summary report.Summary, pivot report.Pivot) error {
	f.summary, f.pivot = summary, pivot
	return f.err
}

func TestPublishSheets(t *testing.T) {
	pub := &fakePublisher{}
	h := newHarness(t, func(d *Deps) { d.Sheets = pub })
	today := h.svc.Today()
	h.seed("Rice", 1000, today)
	h.seed("Fuel", 500, today)

	rr := h.do(http.MethodPost, "/reports/gsheet", url.Values{"mode": {"current_month"}})
	if rr.Code != http.StatusOK || !strings.Contains(trigger(rr), "Published") {
		t.Fatalf("publish: %d %s", rr.Code, trigger(rr))
	}
	if len(pub.summary.Rows) != 2 || pub.summary.Title != pub.pivot.Title {
		t.Fatalf("summary = %+v", pub.summary)
	}

	pub.err = errors.New("quota")
	rr = h.do(http.MethodPost, "/reports/gsheet", url.Values{"mode": {"current_month"}})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("failing publish status = %d", rr.Code)
	}

	plain := newHarness(t)
	rr = plain.do(http.MethodPost, "/reports/gsheet", url.Values{})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unconfigured publish status = %d", rr.Code)
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.RateLimitPerMinute = 2 })
	for i := 0; i < 2; i++ {
		if rr := h.do(http.MethodPost, "/ui/list/toggle-filter", url.Values{}); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rr.Code)
		}
	}
	rr := h.do(http.MethodPost, "/ui/list/toggle-filter", url.Values{})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr := h.do(http.MethodGet, "/list", nil); rr.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rr.Code)
	}
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	lines := make(chan string, 32)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	waitFor := func(want string) {
		t.Helper()
		timeout := time.After(5 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream closed before %q", want)
				}
				if line == want {
					return
				}
			case <-timeout:
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	waitFor("retry: 3000")
	if _, err := h.svc.AddExpense(ctx, core.Expense{ExpenseName: "Rice", Amount: core.AmountFromInt(10), Date: h.svc.Today()}, "tester"); err != nil {
		t.Fatalf("add: %v", err)
	}
	waitFor("event: " + eventExpensesChanged)

	if _, err := h.svc.AddTemplate(ctx, "Fuel"); err != nil {
		t.Fatalf("add template: %v", err)
	}
	waitFor("event: " + eventTemplatesChanged)
}
