package trace

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"findash/internal/log"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the request ID in both directions.
	HeaderRequestID = "X-Request-ID"

	// RouteUnmatched labels requests no route pattern claimed.
	RouteUnmatched = "unmatched"
)

// Observer receives one call per finished request.
type Observer func(route string, status int, elapsed time.Duration)

// Middleware assigns request IDs, attaches a request-scoped logger and
// logs completion.
type Middleware struct {
	logger  *log.Logger
	observe Observer
}

// NewMiddleware creates a trace middleware. logger may be nil to use the
// slog default; observe may be nil.
func NewMiddleware(logger *log.Logger, observe Observer) *Middleware {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &Middleware{logger: logger, observe: observe}
}

// Middleware returns HTTP middleware for request tracing
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	// the innermost request is the one the mux sets Pattern on
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rw, ok := w.(*responseWriter); ok {
			rw.req = r
		}
		slog.DebugContext(r.Context(), "HTTP request started",
			log.FieldRequestID, GetRequestID(r.Context()),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		next.ServeHTTP(w, r)
	})
	withLogger := log.Middleware(m.logger, func(r *http.Request) string {
		return GetRequestID(r.Context())
	})(inner)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := requestIDFrom(r)
		w.Header().Set(HeaderRequestID, requestID)
		r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID))

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK, req: r}
		withLogger.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		log.LogHTTPEnd(rw.req.Context(), rw.req, rw.statusCode, elapsed.Milliseconds())
		if m.observe != nil {
			m.observe(Route(rw.req), rw.statusCode, elapsed)
		}
	})
}

// Route returns the matched mux pattern, bounded for use as a metric label.
func Route(r *http.Request) string {
	if r.Pattern == "" {
		return RouteUnmatched
	}
	return r.Pattern
}

// requestIDFrom keeps a caller supplied ID when it is a UUID.
func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	return uuid.NewString()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	req         *http.Request
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

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
