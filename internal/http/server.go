// Package http serves the ledger as a JSON API behind HTTP Basic auth.
package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"gestionjm/internal/cache"
	"gestionjm/internal/core"
	"gestionjm/internal/identity"
	"gestionjm/internal/log"
	"gestionjm/internal/middleware/ratelimit"
	"gestionjm/internal/middleware/security"
	"gestionjm/internal/middleware/trace"
	"gestionjm/internal/services"
)

const (
	defaultReportCacheSize = 64
	defaultReportCacheTTL  = 5 * time.Minute
	cacheCleanupInterval   = 10 * time.Minute
	readyTimeout           = 2 * time.Second
)

type Server struct {
	http.Server
	ledger   *services.LedgerService
	identity *identity.Provider
	logger   *log.Logger
	events   *log.StructuredLogger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	// Monthly reports and category totals, dropped on every write.
	reports    *cache.LRUCache[core.MonthlyBalanceReport]
	categories *cache.LRUCache[[]core.CategoryTotal]
	caches     *cache.Manager

	// cacheGen is bumped by every purge. A load that started under an older
	// generation is not stored.
	cacheMu  sync.Mutex
	cacheGen uint64

	now          func() time.Time
	shutdownOnce sync.Once
}

type options struct {
	logger          *log.Logger
	cacheSize       int
	cacheTTL        time.Duration
	writesPerMinute int
	now             func() time.Time
}

type Option func(*options)

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReportCache sizes the monthly report cache.
func WithReportCache(size int, ttl time.Duration) Option {
	return func(o *options) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithWriteRateLimit caps write requests per client IP and minute.
func WithWriteRateLimit(perMinute int) Option {
	return func(o *options) { o.writesPerMinute = perMinute }
}

// WithClock replaces time.Now for default dates and months.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewServer wires routes and middleware, returning a ready-to-run server.
// Shutdown must be called to stop its background goroutines.
func NewServer(addr string, ledger *services.LedgerService, ids *identity.Provider, opts ...Option) *Server {
	o := options{
		cacheSize:       defaultReportCacheSize,
		cacheTTL:        defaultReportCacheTTL,
		writesPerMinute: ratelimit.DefaultConfig().RequestsPerMinute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(log.DefaultConfig())
	}
	logger := o.logger.WithComponent(log.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:     ledger,
		identity:   ids,
		logger:     logger,
		events:     log.NewStructuredLogger(logger),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: o.writesPerMinute}),
		detector:   security.NewDetector(),
		reports:    cache.NewLRUCache[core.MonthlyBalanceReport](o.cacheSize, o.cacheTTL),
		categories: cache.NewLRUCache[[]core.CategoryTotal](o.cacheSize, o.cacheTTL),
		caches:     cache.NewManager(logger),
		now:        o.now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	s.caches.Register(s.reports)
	s.caches.Register(s.categories)
	s.caches.StartCleanup(cacheCleanupInterval)

	s.routes(mux)
	s.Handler = s.middleware(mux)
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/me", s.requireUser(s.handleMe))
	mux.HandleFunc("GET /api/users", s.requireUser(s.handleUsers))
	mux.HandleFunc("GET /api/categories", s.requireUser(s.handleCategories))
	mux.HandleFunc("POST /api/pin", s.requireUser(s.handleChangePin))

	mux.HandleFunc("GET /api/expenses", s.requireUser(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.requireUser(s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses/recent", s.requireUser(s.handleRecentExpenses))
	mux.HandleFunc("GET /api/expenses/{id}", s.requireUser(s.handleGetExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.requireUser(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.requireUser(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/transfers", s.requireUser(s.handleListTransfers))
	mux.HandleFunc("POST /api/transfers", s.requireUser(s.handleCreateTransfer))
	mux.HandleFunc("DELETE /api/transfers/{id}", s.requireUser(s.handleDeleteTransfer))

	mux.HandleFunc("GET /api/balances", s.requireUser(s.handleBalances))
	mux.HandleFunc("GET /api/balances/categories", s.requireUser(s.handleCategoryTotals))

	mux.HandleFunc("GET /api/export", s.requireUser(s.handleExport))
	mux.HandleFunc("POST /api/import", s.requireUser(s.handleImport))
}

// middleware wraps the mux, outermost first: headers, tracing, request
// logger, probe detection, write rate limit.
func (s *Server) middleware(next http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.tracer.Middleware,
		log.Middleware(s.logger),
		log.RequestIDMiddleware(trace.RequestID),
		s.detector.Middleware(s.logger),
		s.limiter.Middleware(s.detector.ExtractClientIP, isRead, s.handleRateLimited),
	}
	h := next
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

func isRead(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:     "too many requests, try again in a minute",
		Code:      codeRateLimited,
		RequestID: trace.RequestID(r),
	})
}

// invalidateReports drops every cached report. Writes can move records
// between months, so per-month eviction is not enough.
func (s *Server) invalidateReports() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheGen++
	s.reports.Purge()
	s.categories.Purge()
}

func (s *Server) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

// storeIfCurrent runs store only when no purge happened since gen was read.
func (s *Server) storeIfCurrent(gen uint64, store func()) bool {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGen != gen {
		return false
	}
	store()
	return true
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// ListenAndServe runs the server until Shutdown. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks the record store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.ledger.Repository().Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// today is the server's calendar date, the default for new records.
func (s *Server) today() core.Date {
	return core.DateOf(s.now())
}
