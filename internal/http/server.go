package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"risparmi/internal/cache"
	"risparmi/internal/core"
	applog "risparmi/internal/log"
	"risparmi/internal/middleware/ratelimit"
	"risparmi/internal/middleware/security"
	"risparmi/internal/middleware/trace"
	"risparmi/internal/records"
	"risparmi/internal/services"
)

// Dependencies are the ledger components served by the API.
type Dependencies struct {
	// Accounts belong to the accounts subsystem; the API only creates and
	// lists them. Balances move through the services.
	Accounts  records.AccountStore
	Engine    *services.ContributionEngine
	Goals     *services.GoalManager
	Recurring *services.RecurringProcessor
}

// Options tune the HTTP surface.
type Options struct {
	DefaultUserID     string
	PlannerCacheSize  int
	PlannerCacheTTL   time.Duration
	RequestsPerMinute int
}

type Server struct {
	http.Server
	deps    Dependencies
	options Options

	detector    *security.Detector
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	// Planner results only depend on the query, so they are cached.
	plannerCache *cache.LRUCache[any]
	caches       *cache.Manager
	now          func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, deps Dependencies, opts Options) *Server {
	if opts.PlannerCacheSize <= 0 {
		opts.PlannerCacheSize = 256
	}
	if opts.PlannerCacheTTL <= 0 {
		opts.PlannerCacheTTL = 10 * time.Minute
	}

	limiterCfg := ratelimit.DefaultConfig()
	if opts.RequestsPerMinute > 0 {
		limiterCfg.RequestsPerMinute = opts.RequestsPerMinute
	}

	s := &Server{
		deps:         deps,
		options:      opts,
		detector:     security.NewDetector(),
		rateLimiter:  ratelimit.NewLimiter(limiterCfg),
		plannerCache: cache.NewLRUCache[any](opts.PlannerCacheSize, opts.PlannerCacheTTL),
		caches:       cache.NewManager(),
		now:          time.Now,
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, opts.DefaultUserID)

	s.caches.Register("planner", s.plannerCache)
	s.caches.StartCleanup(opts.PlannerCacheTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("GET /api/goals/{id}", s.handleGetGoal)
	mux.HandleFunc("PATCH /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/complete", s.handleCompleteGoal)
	mux.HandleFunc("GET /api/goals/{id}/forecast", s.handleForecast)
	mux.HandleFunc("GET /api/goals/{id}/transactions", s.handleRelatedTransactions)
	mux.HandleFunc("GET /api/goals/{id}/transactions/count", s.handleRelatedTransactionsCount)

	mux.HandleFunc("GET /api/goals/{id}/contributions", s.handleListContributions)
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.handleContribute)
	mux.HandleFunc("DELETE /api/contributions/{id}", s.handleDeleteContribution)

	mux.HandleFunc("GET /api/recurring", s.handleListRecurring)
	mux.HandleFunc("POST /api/recurring", s.handleScheduleRecurring)
	mux.HandleFunc("POST /api/recurring/{id}/pause", s.handleSetRecurringActive(false))
	mux.HandleFunc("POST /api/recurring/{id}/resume", s.handleSetRecurringActive(true))

	mux.HandleFunc("GET /api/ledger/drift", s.handleDetectDrift)
	mux.HandleFunc("POST /api/ledger/resync", s.handleResync)

	mux.HandleFunc("GET /api/planner/monthly", s.handlePlannerMonthly)
	mux.HandleFunc("GET /api/planner/simulate", s.handlePlannerSimulate)
	mux.HandleFunc("GET /api/planner/scenarios", s.handlePlannerScenarios)
	mux.HandleFunc("GET /api/planner/lump-sum", s.handlePlannerLumpSum)
	mux.HandleFunc("GET /api/planner/achievement", s.handlePlannerAchievement)
	mux.HandleFunc("GET /api/planner/presets", handlePlannerPresets)

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			"client_ip", s.detector.ExtractClientIP(r),
			"method", r.Method,
			"path", r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "RateLimited", "rate limit exceeded, try again later").Write(w)
	})

	var handler http.Handler = mux
	handler = limited(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.ComponentMiddleware(applog.ComponentHTTP)(handler)
	handler = applog.Middleware(applog.New(applog.Config{Handler: slog.Default().Handler()}))(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// userID is the acting user set by the trace middleware.
func (s *Server) userID(r *http.Request) string {
	if id := trace.GetUserID(r.Context()); id != "" {
		return id
	}
	return s.options.DefaultUserID
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

// handleReady reports ready once the record store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := s.deps.Accounts.ListAccounts(ctx, s.userID(r)); err != nil {
		slog.ErrorContext(ctx, "Readiness check failed", "error", err)
		ErrorResponse(http.StatusServiceUnavailable, "Unavailable", "record store unavailable").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

func ledgerLog(r *http.Request) *applog.StructuredLogger {
	return applog.NewStructuredLogger(applog.FromContext(r.Context()))
}

// writeLedgerError logs and writes an error returned by the services.
func writeLedgerError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	resp := LedgerError(err)
	kind := core.Kind(err)
	if resp.statusCode >= http.StatusInternalServerError {
		ledgerLog(r).LogError(r.Context(), "Ledger operation failed", err, applog.ComponentLedger, operation,
			applog.LogFields{applog.FieldErrorKind: kind})
	} else {
		applog.FromContext(r.Context()).InfoContext(r.Context(), "Ledger operation rejected",
			applog.FieldOperation, operation,
			applog.FieldErrorKind, kind,
			applog.FieldError, err)
	}
	resp.Write(w)
}
