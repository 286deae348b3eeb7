package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"mysokha/internal/cache"
	"mysokha/internal/drafts"
	"mysokha/internal/identity"
	"mysokha/internal/live"
	"mysokha/internal/log"
	"mysokha/internal/middleware/ratelimit"
	"mysokha/internal/middleware/security"
	"mysokha/internal/middleware/trace"
	"mysokha/internal/report"
	"mysokha/internal/services"
	"mysokha/internal/shell"
	appweb "mysokha/web"
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

// SheetPublisher writes report tables to an external spreadsheet.
type SheetPublisher interface {
	Publish(ctx context.Context, summary report.Summary, pivot report.Pivot) error
}

// Deps are the collaborators the server is built from. Sheets, Caches and
// Ready may be nil.
type Deps struct {
	Service  *services.ExpenseService
	Sessions *shell.Sessions
	Verifier *identity.Verifier
	Drafts   drafts.Slot
	AppID    string
	Reports  *report.Generator
	Sheets   SheetPublisher
	Caches   *cache.Manager
	Ready    func(context.Context) error

	CurrencySymbol     string
	SecureCookies      bool
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	templates *template.Template
	logger    *log.Logger

	svc       *services.ExpenseService
	hub       *live.Hub
	sessions  *shell.Sessions
	slots     drafts.Slot
	appID     string
	reports   *report.Generator
	sheets    SheetPublisher
	downloads *cache.LRUCache[report.Result]
	ready     func(context.Context) error
	currency  string

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	metrics      appMetrics
	closing      chan struct{}
	shutdownOnce sync.Once
}

type appMetrics struct {
	started          time.Time
	expensesSaved    atomic.Int64
	expensesBlocked  atomic.Int64
	expensesFailed   atomic.Int64
	reportsGenerated atomic.Int64
	reportsFailed    atomic.Int64
	streams          atomic.Int64
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, logger *log.Logger) *Server {
	httpLogger := logger.WithComponent(log.ComponentHTTP)
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger:      httpLogger,
		svc:         deps.Service,
		hub:         deps.Service.Hub(),
		sessions:    deps.Sessions,
		slots:       deps.Drafts,
		appID:       deps.AppID,
		reports:     deps.Reports,
		sheets:      deps.Sheets,
		downloads:   cache.NewLRUCache[report.Result](64, 5*time.Minute),
		ready:       deps.Ready,
		currency:    deps.CurrencySymbol,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}, logger),
		detector:    security.NewDetector(logger),
		closing:     make(chan struct{}),
	}
	s.metrics.started = time.Now()
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	t, err := appweb.Templates(templateFuncs)
	if err != nil {
		httpLogger.Error("Failed parsing templates", log.NewFields().WithError(err, log.ErrorTypeConfiguration).ToSlice()...)
	}
	s.templates = t

	if deps.Caches != nil {
		deps.Caches.Register("sessions", deps.Sessions.Cache())
		deps.Caches.Register("downloads", s.downloads)
		deps.Caches.Register("rate_limit", s.rateLimiter)
		if s.reports != nil {
			deps.Caches.Register("report_files", s.reports.Files())
		}
	}

	if sub, err := appweb.Static(); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		httpLogger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	s.routes(mux)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
	h = deps.Verifier.Middleware(deps.SecureCookies)(h)
	h = log.Middleware(httpLogger, trace.RequestIDFromRequest)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	// pages
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /list", s.handleList)
	mux.HandleFunc("GET /add", s.handleAdd)
	mux.HandleFunc("GET /templates", s.handleTemplates)
	mux.HandleFunc("GET /go/{page}", s.handleNavigate)

	// partials
	mux.HandleFunc("GET /ui/dashboard", s.handleDashboardBody)
	mux.HandleFunc("GET /ui/list", s.handleListBody)
	mux.HandleFunc("GET /ui/drafts", s.handleDraftsBody)
	mux.HandleFunc("GET /ui/templates", s.handleTemplateList)
	mux.HandleFunc("GET /ui/report", s.handleReportForm)
	mux.HandleFunc("POST /ui/filter", s.handleFilter)
	mux.HandleFunc("POST /ui/list/page", s.handleListPage)
	mux.HandleFunc("POST /ui/list/toggle-filter", s.handleToggleListFilter)

	// expenses
	mux.HandleFunc("GET /expenses/{id}", s.handleShowRow)
	mux.HandleFunc("GET /expenses/{id}/edit", s.handleEditRow)
	mux.HandleFunc("PATCH /expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("POST /expenses/{id}/delete", s.handleDeleteRequest)
	mux.HandleFunc("POST /expenses/delete/confirm", s.handleDeleteConfirm)
	mux.HandleFunc("POST /expenses/delete/cancel", s.handleDeleteCancel)

	// batch entry
	mux.HandleFunc("POST /drafts/rows", s.handleAddDraftRow)
	mux.HandleFunc("PATCH /drafts/rows/{id}", s.handleEditDraftCell)
	mux.HandleFunc("DELETE /drafts/rows/{id}", s.handleDeleteDraftRow)
	mux.HandleFunc("POST /drafts/submit", s.handleSubmitDrafts)

	// templates
	mux.HandleFunc("POST /templates", s.handleAddTemplate)
	mux.HandleFunc("DELETE /templates/{id}", s.handleDeleteTemplate)

	// reports
	mux.Handle("POST /reports", security.NoStore(http.HandlerFunc(s.handleGenerateReport)))
	mux.Handle("GET /reports/files/{token}", security.NoStore(http.HandlerFunc(s.handleDownload)))
	mux.HandleFunc("POST /reports/gsheet", s.handlePublishSheets)

	mux.HandleFunc("GET /events", s.handleEvents)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
}

// Shutdown closes open event streams, then shuts the HTTP server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.closing)
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Too many changes, please wait a moment").Write(w)
}

// renderHTML executes a named template into memory so a failing template
// never leaves a half-written response.
func (s *Server) renderHTML(name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, errTemplatesNotLoaded
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// respond renders name into b and writes it.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	html, err := s.renderHTML(name, data)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			append(log.NewFields().WithError(err, log.ErrorTypeTemplate).ToSlice(), "template", name)...)
		InternalServerError("Page could not be rendered").Write(w)
		return
	}
	b.BodyHTML(html).Write(w)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	s.respond(w, r, NewHTMXResponse(), name, data)
}
