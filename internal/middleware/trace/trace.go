package trace

import (
	"context"
	"net/http"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	applog "risparmi/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// UserIDKey is the context key for the acting user
	UserIDKey ContextKey = "user_id"

	RequestIDHeader = "X-Request-ID"
	UserIDHeader    = "X-User-ID"
)

// Incoming ids are echoed into logs and headers, so only plain tokens are
// accepted.
var validID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP     func(*http.Request) string
	defaultUserID string
	metrics       *Metrics
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	AverageResponseTime int64 // in microseconds
	totalResponseTime   int64
}

// NewMiddleware creates a new trace middleware. Requests without a valid
// X-User-ID header act as defaultUserID.
func NewMiddleware(extractIP func(*http.Request) string, defaultUserID string) *Middleware {
	return &Middleware{
		extractIP:     extractIP,
		defaultUserID: defaultUserID,
		metrics:       &Metrics{},
	}
}

// Middleware returns HTTP middleware for request tracing
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(RequestIDHeader)
		if !validID.MatchString(requestID) {
			requestID = GenerateRequestID()
		}
		userID := r.Header.Get(UserIDHeader)
		if !validID.MatchString(userID) {
			userID = m.defaultUserID
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = context.WithValue(ctx, UserIDKey, userID)
		r = r.WithContext(ctx)
		w.Header().Set(RequestIDHeader, requestID)

		sl := applog.NewStructuredLogger(applog.FromContext(ctx).With(
			applog.FieldRequestID, requestID,
			applog.FieldUserID, userID))
		sl.LogHTTPStart(ctx, r, clientIP)

		atomic.AddInt64(&m.metrics.TotalRequests, 1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.recordDuration(duration)
		sl.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
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

// GetUserID extracts the acting user from context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

func (m *Middleware) recordDuration(d time.Duration) {
	total := atomic.AddInt64(&m.metrics.totalResponseTime, d.Microseconds())
	if n := atomic.LoadInt64(&m.metrics.TotalRequests); n > 0 {
		atomic.StoreInt64(&m.metrics.AverageResponseTime, total/n)
	}
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:       atomic.LoadInt64(&m.metrics.TotalRequests),
		AverageResponseTime: atomic.LoadInt64(&m.metrics.AverageResponseTime),
	}
}
