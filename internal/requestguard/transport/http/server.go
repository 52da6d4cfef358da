// Package httptransport provides the HTTP server hosting the guard chain.
package httptransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"requestguard/internal/requestguard/core"
	"requestguard/internal/requestguard/observability"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustForwarded bool
}

// Guards bundles the three injected guard instances.
type Guards struct {
	Scanner   *core.ThreatScanner
	SizeGuard *core.SizeGuard
	RateGuard *core.RateGuard
	IPLimiter *IPLimiter
}

// Server mounts the guard chain in front of an application handler and
// serves health, readiness, and metrics endpoints beside it.
type Server struct {
	cfg     ServerConfig
	guards  Guards
	app     http.Handler
	logger  *zap.Logger
	metrics *observability.InMemoryMetrics
	ready   func() bool

	mu  sync.Mutex
	srv *http.Server
}

// NewServer constructs a server. The application handler receives every
// request that clears the guard chain.
func NewServer(cfg ServerConfig, guards Guards, app http.Handler, logger *zap.Logger, metrics *observability.InMemoryMetrics, ready func() bool) (*Server, error) {
	if app == nil {
		return nil, errors.New("application handler is required")
	}
	if guards.Scanner == nil || guards.SizeGuard == nil || guards.RateGuard == nil {
		return nil, errors.New("all guards must be provided")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{
		cfg:     cfg,
		guards:  guards,
		app:     app,
		logger:  logger,
		metrics: metrics,
		ready:   ready,
	}, nil
}

// Handler returns the composed router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.cfg.TrustForwarded {
		r.Use(chimw.RealIP)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(SecurityHardening(s.guards.Scanner, s.guards.IPLimiter, SecurityHardeningOptions{
			TrustForwarded: s.cfg.TrustForwarded,
			Logger:         s.logger,
			Metrics:        s.metrics,
		}))
		r.Use(RequestSizeLimit(s.guards.SizeGuard, s.metrics))
		r.Use(RateLimit(s.guards.RateGuard, RateLimitOptions{
			LimitType: core.LimitGeneralAPI,
			SizeAware: true,
			Logger:    s.logger,
			Metrics:   s.metrics,
		}))
		r.Mount("/", s.app)
	})
	return r
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	if s == nil {
		return errors.New("server is nil")
	}
	s.mu.Lock()
	if s.srv == nil {
		s.srv = &http.Server{
			Addr:         s.cfg.Addr,
			Handler:      s.Handler(),
			ReadTimeout:  s.cfg.ReadTimeout,
			WriteTimeout: s.cfg.WriteTimeout,
			IdleTimeout:  s.cfg.IdleTimeout,
		}
	}
	srv := s.srv
	s.mu.Unlock()

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("http server listening", zap.String("addr", srv.Addr))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("http server shutting down")
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
