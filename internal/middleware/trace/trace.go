package trace

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "fintrack/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the request ID in both directions.
	HeaderRequestID = "X-Request-ID"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.Logger

	totalRequests int64
	totalMicros   int64
	serverErrors  int64
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64 `json:"total_requests"`
	ServerErrors        int64 `json:"server_errors"`
	AverageResponseTime int64 `json:"average_response_us"`
}

// NewMiddleware creates a new trace middleware. logger may be nil.
func NewMiddleware(extractIP func(*http.Request) string, logger *slog.Logger) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		logger:    applog.FromSlog(logger, applog.ComponentHTTP),
	}
}

// Middleware returns HTTP middleware for request tracing. It assigns a request
// ID (reusing a well-formed inbound X-Request-ID), stores a request scoped
// logger in the context and logs start and completion.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(HeaderRequestID)
		if !validRequestID.MatchString(requestID) {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)

		logger := m.logger.With(applog.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = applog.IntoContext(ctx, logger)
		r = r.WithContext(ctx)

		logger.DebugContext(ctx, "HTTP request started",
			applog.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
				WithClientIP(clientIP).
				ToSlice()...)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		atomic.AddInt64(&m.totalRequests, 1)
		atomic.AddInt64(&m.totalMicros, duration.Microseconds())
		if rw.statusCode >= 500 {
			atomic.AddInt64(&m.serverErrors, 1)
		}

		logLevel := slog.LevelInfo
		if rw.statusCode >= 400 && rw.statusCode < 500 {
			logLevel = slog.LevelWarn
		} else if rw.statusCode >= 500 {
			logLevel = slog.LevelError
		}

		logger.Log(ctx, logLevel, "HTTP request completed",
			applog.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "").
				WithHTTPResponse(rw.statusCode, duration.Milliseconds()).
				WithClientIP(clientIP).
				ToSlice()...)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	total := atomic.LoadInt64(&m.totalRequests)
	out := Metrics{
		TotalRequests: total,
		ServerErrors:  atomic.LoadInt64(&m.serverErrors),
	}
	if total > 0 {
		out.AverageResponseTime = atomic.LoadInt64(&m.totalMicros) / total
	}
	return out
}
