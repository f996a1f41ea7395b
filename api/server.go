// Package api exposes the agent over HTTP.
//
// Information Hiding:
// - Routing, CORS and rate limiting hidden behind Server.Handler
// - Request validation and error body shapes hidden in this package
// - SSE framing hidden behind the stream handler
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/richinex/agentrag/agent"
	"github.com/richinex/agentrag/health"
)

// Options configures the HTTP surface.
type Options struct {
	Addr            string
	Version         string
	CORSEnabled     bool
	AllowedOrigins  []string
	RateLimit       bool
	RateLimitRPS    float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// DefaultOptions returns options for a local server with CORS enabled and
// rate limiting off.
func DefaultOptions() Options {
	return Options{
		Addr:            "0.0.0.0:9080",
		Version:         "1.0.0",
		CORSEnabled:     true,
		AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:8080"},
		RateLimitRPS:    10,
		RateLimitBurst:  20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server serves the chat, stream, health and tools endpoints.
type Server struct {
	agents  *agent.Service
	checker *health.Checker
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

// NewServer wires the routes. The agent service is initialized lazily by
// the first request that needs it.
func NewServer(agents *agent.Service, checker *health.Checker, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		agents:  agents,
		checker: checker,
		opts:    opts,
		logger:  logger.With("component", "api"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.opts.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if s.opts.RateLimit {
		r.Use(s.rateLimit(newClientLimiter(s.opts.RateLimitRPS, s.opts.RateLimitBurst)))
	}

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Get("/tools", s.handleTools)
	r.Post("/chat", s.handleChat)
	r.Post("/chat-stream", s.handleChatStream)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
// In-flight requests keep their contexts through shutdown and are only
// cancelled once the shutdown timeout expires.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", ln.Addr().String(), "version", s.opts.Version)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("api shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		cancelBase()
		srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"remote", r.RemoteAddr,
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

const maxTrackedClients = 10000

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (l *clientLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			clear(l.clients)
		}
		lim = rate.NewLimiter(l.rps, l.burst)
		l.clients[key] = lim
	}
	return lim
}

func (s *Server) rateLimit(l *clientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(key); err == nil {
				key = host
			}
			if !l.limiter(key).Allow() {
				w.Header().Set("Retry-After", "1")
				s.writeError(w, r, http.StatusTooManyRequests, errRateLimited, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
