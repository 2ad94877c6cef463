package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"findash/internal/amqp"
	"findash/internal/catalog"
	"findash/internal/core"
	"findash/internal/log"
	"findash/internal/metrics"
	"findash/internal/middleware/ratelimit"
	"findash/internal/middleware/security"
	"findash/internal/middleware/trace"
	"findash/internal/services"
)

// DashboardProvider is the read side the API serves from.
type DashboardProvider interface {
	Build(ctx context.Context) (services.Dashboard, error)
	KPIs(ctx context.Context, metrics ...string) ([]services.KPI, error)
	Variance(ctx context.Context) (services.VarianceTable, error)
	Series(ctx context.Context, metric string) (core.Series, error)
	Catalog() *catalog.Catalog
}

// ImportPublisher enqueues import jobs for the worker.
type ImportPublisher interface {
	PublishImport(ctx context.Context, msg *amqp.ImportMessage) error
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

var _ DashboardProvider = (*services.DashboardService)(nil)
var _ ImportPublisher = (*amqp.Client)(nil)

// Options wires the server's dependencies. Only Dashboard is required.
type Options struct {
	Dashboard DashboardProvider
	Publisher ImportPublisher
	Checks    map[string]ReadinessCheck
	Metrics   *metrics.Metrics
	Logger    *log.Logger
	RateLimit ratelimit.Config
}

// Server is the JSON API in front of the dashboard service.
type Server struct {
	http.Server
	dashboard DashboardProvider
	publisher ImportPublisher
	checks    map[string]ReadinessCheck
	metrics   *metrics.Metrics
	limiter   *ratelimit.Limiter
	clientIP  *security.ClientIP
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, opts Options) (*Server, error) {
	if opts.Dashboard == nil {
		return nil, errors.New("dashboard provider is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		dashboard: opts.Dashboard,
		publisher: opts.Publisher,
		checks:    opts.Checks,
		metrics:   opts.Metrics,
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		clientIP:  security.NewClientIP(),
		started:   time.Now(),
	}

	limited := s.limiter.Middleware(s.clientIP.Extract, s.onRateLimited)
	api := func(h http.HandlerFunc) http.Handler { return limited(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.Handle("GET /api/dashboard", api(s.handleDashboard))
	mux.Handle("GET /api/kpis", api(s.handleKPIs))
	mux.Handle("GET /api/kpis/{metric}", api(s.handleKPI))
	mux.Handle("GET /api/variance", api(s.handleVariance))
	mux.Handle("GET /api/variance.xlsx", api(s.handleVarianceXLSX))
	mux.Handle("GET /api/series/{metric}", api(s.handleSeries))
	mux.Handle("POST /api/imports", api(s.handleCreateImport))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(opts.Logger, s.metrics.ObserveHTTP)
	s.Handler = tracer.Middleware(headers.Middleware(mux))
	return s, nil
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited.Inc()
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldPath, r.URL.Path)
	writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, retry later")
}
