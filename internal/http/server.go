// Package http serves the fee ledger as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"feedesk/internal/ledger"
	applog "feedesk/internal/log"
	"feedesk/internal/middleware/ratelimit"
	"feedesk/internal/middleware/security"
	"feedesk/internal/middleware/trace"
	"feedesk/internal/services"
)

// Deps are the services behind the API.
type Deps struct {
	Store     ledger.Store
	Payments  *services.PaymentService
	Receipts  *services.ReceiptService
	Roster    *services.RosterService
	Dashboard *services.AdminDashboard
	Profiles  *services.ProfileService
	// Ping reports storage health for /readyz. Nil means always ready.
	Ping func(ctx context.Context) error
}

type Options struct {
	Logger *applog.Logger
	// PaymentRateLimit caps payment submissions per client per minute.
	PaymentRateLimit int
	// HeartbeatInterval spaces keep-alive comments on event streams.
	HeartbeatInterval time.Duration
}

type appMetrics struct {
	payments        int64
	paymentFailures int64
	feeMarkGaps     int64
	streams         int64
	uptime          time.Time
}

type Server struct {
	http.Server
	deps      Deps
	logger    *applog.Logger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	heartbeat time.Duration
	metrics   appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	s := &Server{
		deps:      deps,
		logger:    logger,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.PaymentRateLimit}),
		detector:  security.NewDetector(),
		tracer:    trace.NewMiddleware(),
		heartbeat: heartbeat,
		metrics:   appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("GET /api/student/dashboard", s.student(s.handleStudentDashboard))
	mux.Handle("GET /api/student/fees/pending", s.student(s.handlePendingFees))
	mux.Handle("POST /api/student/fees/{id}/pay", s.limitPayments(s.student(s.handlePayFee)))
	mux.Handle("GET /api/student/receipts", s.student(s.handleReceipts))
	mux.Handle("GET /api/student/receipts/{number}", s.authenticated(s.handleReceipt))
	mux.Handle("GET /api/student/profile", s.student(s.handleProfile))
	mux.Handle("PATCH /api/student/profile", s.student(s.handleUpdateProfile))

	mux.Handle("GET /api/admin/dashboard", s.admin(s.handleAdminDashboard))
	mux.Handle("GET /api/admin/events", s.admin(s.handleAdminEvents))
	mux.Handle("GET /api/admin/transactions", s.admin(s.handleTransactions))
	mux.Handle("GET /api/admin/students", s.admin(s.handleListStudents))
	mux.Handle("POST /api/admin/students", s.admin(s.handleRegisterStudent))
	mux.Handle("POST /api/admin/fees", s.admin(s.handleAssignFee))

	var handler http.Handler = mux
	handler = applog.Middleware(logger, trace.RequestID, s.detector.ExtractClientIP)(handler)
	handler = s.tracer.Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	// No write timeout: /api/admin/events streams for as long as the client stays.
	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	return s
}

func (s *Server) limitPayments(next http.Handler) http.Handler {
	return s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Payment rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:     "rate limit exceeded, try again later",
			RequestID: trace.RequestID(r),
		})
	})(next)
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) recordPayment(settled bool, gap bool) {
	if !settled {
		atomic.AddInt64(&s.metrics.paymentFailures, 1)
		return
	}
	atomic.AddInt64(&s.metrics.payments, 1)
	if gap {
		atomic.AddInt64(&s.metrics.feeMarkGaps, 1)
	}
}
