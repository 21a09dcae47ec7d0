// Package http hosts the MCP endpoint together with health probes.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "ledger/internal/log"
	"ledger/internal/mcp"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/trace"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures NewServer.
type Options struct {
	Addr  string
	MCP   *mcp.Server
	Store Pinger

	// RateLimit caps MCP requests per client and minute; zero disables it.
	RateLimit int

	Logger *applog.Logger
}

type Server struct {
	http.Server
	store        Pinger
	logger       *applog.Logger
	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		store:  opts.Store,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	if opts.MCP != nil {
		mcpMux := http.NewServeMux()
		opts.MCP.RegisterRoutes(mcpMux)

		var h http.Handler = mcpMux
		if opts.RateLimit > 0 {
			s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimit})
			h = s.limiter.Middleware(extractClientIP)(h)
		}
		mux.Handle("/mcp", h)
	}

	tracer := trace.NewMiddleware(logger, extractClientIP)
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           applog.Middleware(logger)(tracer.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
