// Package http exposes the forecasting service as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Service is what the API needs from the forecast service.
type Service interface {
	Forecast(ctx context.Context, req services.Request) (*services.Response, error)
	Enqueue(ctx context.Context, req services.Request) (*storage.ForecastRun, error)
	GetRun(ctx context.Context, id string) (*storage.ForecastRun, error)
	ListRuns(ctx context.Context, userID string, limit int) ([]*storage.ForecastRun, error)
	Overview(ctx context.Context, userID string, month core.MonthKey) (core.MonthOverview, error)
	Models() []services.ModelInfo
	CacheStats() cache.Stats
}

// CheckFunc reports readiness; a non-nil error marks the server unready.
type CheckFunc func(ctx context.Context) error

type Options struct {
	Logger          *slog.Logger
	RateLimit       ratelimit.Config
	ReadinessChecks map[string]CheckFunc
	// BlockSuspicious rejects requests the detector flags instead of only logging them.
	BlockSuspicious bool
	WriteTimeout    time.Duration
}

type Server struct {
	http.Server
	service  Service
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	detector *security.Detector
	checks   map[string]CheckFunc

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Service, opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Minute
	}
	logger := applog.FromSlog(opts.Logger, applog.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		service:  svc,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, opts.Logger),
		detector: detector,
		checks:   opts.ReadinessChecks,
	}

	mux := http.NewServeMux()
	api := func(h http.HandlerFunc) http.Handler {
		return s.limiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)(h)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("GET /api/v1/forecast", api(s.handleForecast))
	mux.Handle("POST /api/v1/forecast/jobs", api(s.handleEnqueue))
	mux.Handle("GET /api/v1/forecast/jobs/{id}", api(s.handleGetRun))
	mux.Handle("GET /api/v1/forecast/runs", api(s.handleListRuns))
	mux.Handle("GET /api/v1/models", api(s.handleModels))
	mux.Handle("GET /api/v1/overview", api(s.handleOverview))
	mux.Handle("GET /api/v1/stats", api(s.handleStats))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})

	var handler http.Handler = mux
	handler = detector.Middleware(opts.BlockSuspicious)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.InfoContext(ctx, "HTTP server shutting down", applog.FieldOperation, applog.OpShutdown)
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).
		WarnContext(r.Context(), "Rate limit exceeded", applog.FieldPath, r.URL.Path)
	writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status, code = "unavailable", http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"requests":   s.tracer.GetMetrics(),
		"rate_limit": s.limiter.GetMetrics(),
		"security":   s.detector.GetMetrics(),
		"cache":      s.service.CacheStats(),
	})
}
