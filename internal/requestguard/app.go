// Package requestguard wires the guard stack into a runnable application.
package requestguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"requestguard/internal/requestguard/config"
	"requestguard/internal/requestguard/core"
	"requestguard/internal/requestguard/observability"
	"requestguard/internal/requestguard/store/inmemory"
	redisstore "requestguard/internal/requestguard/store/redis"
	grpctransport "requestguard/internal/requestguard/transport/grpc"
	httptransport "requestguard/internal/requestguard/transport/http"
)

// Options captures application dependencies beyond configuration.
type Options struct {
	// Handler is the protected application. When nil a placeholder
	// responder is mounted so the stack can run standalone.
	Handler http.Handler
	Logger  *zap.Logger
	Store   core.CounterStore
}

// Application owns the guards, the stores, and the transports.
type Application struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.InMemoryMetrics

	store      core.CounterStore
	memStore   *inmemory.Store
	scanner    *core.ThreatScanner
	sizeGuard  *core.SizeGuard
	rateGuard  *core.RateGuard
	ipLimiter  *httptransport.IPLimiter
	httpServer *httptransport.Server
	grpcServer *grpc.Server

	ready  atomic.Bool
	cancel context.CancelFunc
}

// NewApplication validates configuration and assembles the guard stack.
// Every guard is constructed here and injected explicitly; there are no
// package-level singletons.
func NewApplication(ctx context.Context, cfg *config.Config, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		built, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return nil, err
		}
		logger = built
	}

	app := &Application{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewInMemoryMetrics(),
	}

	switch {
	case opts.Store != nil:
		app.store = opts.Store
	case cfg.Redis.Enabled:
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		app.store = store
		logger.Info("using redis counter store", zap.String("addr", cfg.Redis.Addr))
	default:
		app.memStore = inmemory.New()
		app.store = app.memStore
		logger.Info("using in-memory counter store")
	}

	app.scanner = core.NewThreatScanner(core.ThreatScannerOptions{
		MaxInspectBytes: cfg.Security.MaxInspectBytes,
		Logger:          logger,
	})
	app.sizeGuard = core.NewSizeGuard(nil, logger)
	app.rateGuard = core.NewRateGuard(app.store, core.RateGuardOptions{
		Breaker: core.NewStoreBreaker(core.BreakerOptions{}),
		Logger:  logger,
	})
	app.ipLimiter = httptransport.NewIPLimiter(httptransport.IPLimiterOptions{
		RatePerSecond: cfg.Security.IPRatePerSecond,
		Burst:         cfg.Security.IPBurst,
		IdleTTL:       cfg.Security.IPIdleTTL,
	})

	handler := opts.Handler
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"protected"}`))
		})
	}

	server, err := httptransport.NewServer(httptransport.ServerConfig{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TrustForwarded: cfg.Security.TrustForwarded,
	}, httptransport.Guards{
		Scanner:   app.scanner,
		SizeGuard: app.sizeGuard,
		RateGuard: app.rateGuard,
		IPLimiter: app.ipLimiter,
	}, handler, logger, app.metrics, app.ready.Load)
	if err != nil {
		return nil, err
	}
	app.httpServer = server

	if cfg.GRPC.Enabled {
		app.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
			grpctransport.UnaryLogging(logger, app.metrics),
			grpctransport.UnaryRateLimit(app.rateGuard, core.LimitGeneralAPI, logger, app.metrics),
		))
	}

	return app, nil
}

// GRPCServer exposes the gRPC server so the platform can register
// services before Start. Nil when gRPC is disabled.
func (a *Application) GRPCServer() *grpc.Server {
	if a == nil {
		return nil
	}
	return a.grpcServer
}

// RateGuard exposes the rate guard for per-route middleware composition.
func (a *Application) RateGuard() *core.RateGuard {
	if a == nil {
		return nil
	}
	return a.rateGuard
}

// Start launches the transports and background janitors.
func (a *Application) Start(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.memStore != nil {
		a.memStore.StartJanitor(runCtx)
	}
	a.ipLimiter.StartJanitor(runCtx)

	go func() {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server exited", zap.Error(err))
		}
	}()

	if a.grpcServer != nil {
		listener, err := net.Listen("tcp", a.cfg.GRPC.Addr)
		if err != nil {
			cancel()
			return err
		}
		go func() {
			a.logger.Info("grpc server listening", zap.String("addr", a.cfg.GRPC.Addr))
			if err := a.grpcServer.Serve(listener); err != nil {
				a.logger.Error("grpc server exited", zap.Error(err))
			}
		}()
	}

	a.ready.Store(true)
	return nil
}

// Shutdown drains the transports and releases the store.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.ready.Store(false)
	if a.cancel != nil {
		a.cancel()
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	err := a.httpServer.Shutdown(ctx)
	if closeErr := a.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
