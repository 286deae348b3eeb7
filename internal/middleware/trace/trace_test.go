package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mysokha/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	m := NewMiddleware(log.Discard(), func(*http.Request) string { return "10.0.0.1" })

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/list", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("header = %q, want %q", got, seen)
	}
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rr.Code)
	}

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 1 || metrics.InFlight != 0 {
		t.Fatalf("metrics = %+v", metrics)
	}
}

func TestRequestIDFeedsLogMiddleware(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)

	var logger *log.Logger
	inner := log.Middleware(log.Discard().WithComponent(log.ComponentHTTP), RequestIDFromRequest)
	h := m.Middleware(inner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger = log.FromContext(r.Context())
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if logger == nil || logger.Component() != log.ComponentHTTP {
		t.Fatalf("request logger not stored in context: %+v", logger)
	}
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("header = %q", got)
	}
}

func TestResponseWriterFlushes(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}
	var _ http.Flusher = rw

	_, _ = rw.Write([]byte("data: x\n\n"))
	rw.Flush()
	rw.WriteHeader(http.StatusInternalServerError)

	if !rr.Flushed {
		t.Fatal("expected underlying recorder to be flushed")
	}
	if rw.statusCode != http.StatusOK {
		t.Fatalf("status after body = %d, want 200", rw.statusCode)
	}
	if http.NewResponseController(rw) == nil {
		t.Fatal("nil controller")
	}
}
