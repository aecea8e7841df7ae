package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.uptime).Round(time.Second).String(),
	})
}

// handleReady checks storage and reports cache and rate limiter state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.deps.Ping != nil {
		if err := s.deps.Ping(ctx); err != nil {
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "ok"
	}

	if s.deps.Dashboard != nil {
		if at := s.deps.Dashboard.Snapshot().RefreshedAt; at.IsZero() {
			checks["dashboard"] = "not_started"
		} else {
			checks["dashboard"] = map[string]any{"refreshed_at": at.UTC().Format(time.RFC3339)}
		}
	}
	if s.deps.Receipts != nil {
		stats := s.deps.Receipts.CacheStats()
		checks["receipt_cache"] = map[string]any{"entries": stats.Size, "hits": stats.Hits, "misses": stats.Misses}
	}
	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	sec := s.detector.GetMetrics()
	rl := s.limiter.GetMetrics()
	tr := s.tracer.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", tr.TotalRequests)
	metric("http_requests_in_flight", "gauge", "Requests currently being served", tr.InFlight)
	metric("payments_total", "counter", "Payments recorded", atomic.LoadInt64(&s.metrics.payments))
	metric("payment_failures_total", "counter", "Payment submissions that failed", atomic.LoadInt64(&s.metrics.paymentFailures))
	metric("payment_fee_mark_gaps_total", "counter", "Payments recorded whose fee could not be marked paid", atomic.LoadInt64(&s.metrics.feeMarkGaps))
	metric("dashboard_streams", "gauge", "Open dashboard event streams", atomic.LoadInt64(&s.metrics.streams))
	if s.deps.Receipts != nil {
		cs := s.deps.Receipts.CacheStats()
		metric("receipt_cache_entries", "gauge", "Cached receipts", cs.Size)
		metric("receipt_cache_hits_total", "counter", "Receipt cache hits", cs.Hits)
		metric("receipt_cache_misses_total", "counter", "Receipt cache misses", cs.Misses)
	}
	metric("rate_limit_hits_total", "counter", "Requests rejected by the payment rate limit", rl.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rl.ClientCount)
	metric("suspicious_requests_total", "counter", "Suspicious requests detected", sec.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.metrics.uptime).Seconds()))
}
