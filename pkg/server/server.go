// Package server exposes the assistant over HTTP, with a gRPC health
// service on a second port for orchestrators.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/otherjamesbrown/vidq/pkg/assistant"
	"github.com/otherjamesbrown/vidq/pkg/buildinfo"
	"github.com/otherjamesbrown/vidq/pkg/logging"
)

// ServiceName identifies the server in /version and gRPC health checks.
const ServiceName = "vidq-server"

// Asker is the part of the assistant the server needs.
type Asker interface {
	Ask(ctx context.Context, req assistant.AskRequest) (*assistant.Answer, error)
	Resolve(ctx context.Context, req assistant.AskRequest) (*assistant.Resolution, error)
}

// Options configures a Server.
type Options struct {
	HTTPAddress string
	GRPCAddress string
	CORSOrigins []string
	// RequestsPerSecond limits /v1 calls per client IP. Zero disables it.
	RequestsPerSecond float64
	Burst             int
	// RequestTimeout bounds one /v1 call.
	RequestTimeout time.Duration
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Readiness checks back /readyz, keyed by dependency name.
	Readiness map[string]ReadinessCheck
	Logger    logging.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	asker     Asker
	opts      Options
	router    *chi.Mux
	validator *Validator
	limiter   *KeyedRateLimiter
	health    *health.Server
	logger    logging.Logger
}

// New creates a server with all routes configured.
func New(asker Asker, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	s := &Server{
		asker:     asker,
		opts:      opts,
		router:    chi.NewRouter(),
		validator: NewValidator(),
		health:    health.NewServer(),
		logger:    opts.Logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RequestsPerSecond) + 1
		}
		s.limiter = NewKeyedRateLimiter(opts.RequestsPerSecond, burst)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	if len(s.opts.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Get("/version", buildinfo.Handler(ServiceName))
	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit)
		}
		r.Use(s.timeout)
		r.Post("/ask", s.handleAsk)
		r.Post("/resolve", s.handleResolve)
	})
}

// requestLogger logs one line per request through the service logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		ctx := logging.WithRequestID(r.Context(), reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Header().Set("X-Request-Id", reqID)

		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.WithContext(ctx).Info("http request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("status", ww.Status()),
			logging.F("bytes", ww.BytesWritten()),
			logging.F("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// timeout bounds the request context. Handlers map the resulting deadline
// error onto 504 themselves.
func (s *Server) timeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		if !s.limiter.Allow(key) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limit", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves HTTP (and gRPC health when GRPCAddress is set) until ctx is
// cancelled, then shuts both down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.opts.HTTPAddress)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.opts.HTTPAddress, err)
	}
	var grpcLis net.Listener
	if s.opts.GRPCAddress != "" {
		grpcLis, err = net.Listen("tcp", s.opts.GRPCAddress)
		if err != nil {
			httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", s.opts.GRPCAddress, err)
		}
	}
	return s.Serve(ctx, httpLis, grpcLis)
}

// Serve is Run on existing listeners. grpcLis may be nil.
func (s *Server) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("http server listening", logging.F("addr", httpLis.Addr().String()))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if grpcLis != nil {
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, s.health)
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		go func() {
			s.logger.Info("grpc health listening", logging.F("addr", grpcLis.Addr().String()))
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.logger.Info("server stopped")
	return runErr
}
