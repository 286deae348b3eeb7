package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.started).Round(time.Second).String(),
	})
}

// handleReady reports whether the store answers and the live feeds hold a
// good snapshot.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)
	fail := func(name string, v any) {
		checks[name] = v
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", "failed: templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			fail("store", fmt.Sprintf("failed: %v", err))
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "ok"
	}

	if err := s.hub.Err(); err != nil {
		fail("feeds", fmt.Sprintf("stale: %v", err))
	} else {
		checks["feeds"] = "ok"
	}

	checks["cache"] = map[string]any{
		"sessions":  s.sessions.Cache().Size(),
		"downloads": s.downloads.Size(),
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	expenses, version := s.hub.Expenses()
	sessionHits, sessionMisses := s.sessions.Cache().Stats()

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "Requests currently being served", "gauge", traceMetrics.InFlight)
	metric("http_request_duration_avg_microseconds", "Average request duration", "gauge", traceMetrics.AverageResponseTime)
	metric("expenses_saved_total", "Expenses saved from batch entry", "counter", s.metrics.expensesSaved.Load())
	metric("expenses_blocked_total", "Batch rows blocked as already recorded today", "counter", s.metrics.expensesBlocked.Load())
	metric("expenses_failed_total", "Batch rows that failed to save", "counter", s.metrics.expensesFailed.Load())
	metric("expenses_snapshot_size", "Expenses in the current snapshot", "gauge", len(expenses))
	metric("expenses_snapshot_version", "Version of the current expense snapshot", "gauge", version)
	metric("reports_generated_total", "Reports generated or published", "counter", s.metrics.reportsGenerated.Load())
	metric("reports_failed_total", "Report generation failures", "counter", s.metrics.reportsFailed.Load())
	metric("event_streams_open", "Open live event streams", "gauge", s.metrics.streams.Load())
	metric("session_cache_hits_total", "Session cache hits", "counter", sessionHits)
	metric("session_cache_misses_total", "Session cache misses", "counter", sessionMisses)
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "Requests rejected by the detector", "counter", securityMetrics.BlockedRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", int64(time.Since(s.metrics.started).Seconds()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
