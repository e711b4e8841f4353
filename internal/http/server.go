package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"budget/internal/cache"
	"budget/internal/core"
	"budget/internal/ledger"
	applog "budget/internal/log"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	"budget/internal/rates"

	"github.com/shopspring/decimal"
)

// BudgetAPI is the service surface the handlers drive. services.BudgetService implements it.
type BudgetAPI interface {
	AddExpense(ctx context.Context, in ledger.ExpenseInput) (core.Expense, ledger.View, error)
	DeleteExpense(ctx context.Context, id string) (bool, ledger.View, error)
	ClearAll(ctx context.Context) (ledger.View, error)
	SetGoal(ctx context.Context, amount decimal.Decimal, currency string) (core.Goal, ledger.View, error)
	ClearGoal(ctx context.Context) (ledger.View, error)
	SetPreferences(ctx context.Context, displayCurrency, theme string) (ledger.View, error)
	RefreshRates(ctx context.Context, force bool) (rates.Result, ledger.View, error)

	View() ledger.View
	Summary(display string) (ledger.View, error)
	Expenses(order ledger.Order) []core.Expense
	Goal() core.Goal
	Rates() *core.RateTable
	Version() int64
}

// Options configures NewServer. Zero values fall back to defaults.
type Options struct {
	Addr               string
	Logger             *applog.Logger
	RateLimitPerMinute int
	RateLimitBurst     int
	// Caches receives the chart cache so its expired entries are swept.
	Caches *cache.Manager
	// Ready reports readiness dependencies; nil means always ready.
	Ready func(ctx context.Context) error
}

const (
	chartCacheSize = 32
	chartCacheTTL  = 10 * time.Minute
)

type Server struct {
	http.Server
	api         BudgetAPI
	logger      *applog.Logger
	ready       func(ctx context.Context) error
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	// rendered category charts keyed by ledger version and display currency
	chartCache *cache.LRUCache[[]byte]

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(api BudgetAPI, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	limits := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limits.RequestsPerMinute = opts.RateLimitPerMinute
	}
	if opts.RateLimitBurst > 0 {
		limits.Burst = opts.RateLimitBurst
	}

	s := &Server{
		api:         api,
		logger:      logger,
		ready:       opts.Ready,
		rateLimiter: ratelimit.NewLimiter(limits),
		detector:    security.NewDetector(),
		chartCache:  cache.NewLRUCache[[]byte](chartCacheSize, chartCacheTTL),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)
	if opts.Caches != nil {
		opts.Caches.Register("charts", s.chartCache)
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /api/expenses", s.handleClearExpenses)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/goal", s.handleGetGoal)
	mux.HandleFunc("PUT /api/goal", s.handleSetGoal)
	mux.HandleFunc("DELETE /api/goal", s.handleClearGoal)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.handleSetPreferences)

	mux.HandleFunc("GET /api/rates", s.handleGetRates)
	mux.HandleFunc("POST /api/rates/refresh", s.handleRefreshRates)
	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)

	mux.HandleFunc("GET /export/expenses.csv", s.handleExportCSV)
	mux.HandleFunc("GET /export/categories.png", s.handleExportChart)
}

// middleware wraps h as trace -> security headers -> suspicious request log -> rate limit.
func (s *Server) middleware(h http.Handler) http.Handler {
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldComponent, applog.ComponentRateLimit,
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}
	h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, onLimit)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return s.tracer.Middleware(h)
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "Readiness check failed",
				applog.FieldComponent, applog.ComponentHTTP,
				applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, "not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Data(map[string]any{"status": "ready", "version": s.api.Version()}).Write(w)
}
