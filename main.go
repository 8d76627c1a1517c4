package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/EmpoweredVote/rep-lookup/internal/config"
	"github.com/EmpoweredVote/rep-lookup/internal/db"
	"github.com/EmpoweredVote/rep-lookup/internal/logger"
	"github.com/EmpoweredVote/rep-lookup/internal/metrics"
	"github.com/EmpoweredVote/rep-lookup/internal/middleware"
	"github.com/EmpoweredVote/rep-lookup/internal/ratelimit"
	"github.com/EmpoweredVote/rep-lookup/internal/representatives"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format, "rep-lookup")
	if err != nil {
		log.Fatalf("[main] logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("[main] server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.Database, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gdb); err != nil {
			zl.Warn("[db] close", zap.Error(err))
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := representatives.Migrate(gdb); err != nil {
			return err
		}
	}

	m := metrics.New()
	limiter, closeLimiter, err := newLimiter(ctx, cfg.RateLimit, zl, m)
	if err != nil {
		return err
	}
	defer closeLimiter()

	store := representatives.NewStore(gdb, representatives.WithQueryTimeout(cfg.Database.QueryTimeout))
	h := representatives.NewHandler(store, zl, cfg.DebugErrors && !cfg.IsProduction())

	r := chi.NewRouter()
	r.Use(middleware.ClientIP(cfg.TrustProxy))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(zl))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(m.Middleware)

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, zl, m.RateLimited))
		r.Get("/stats", h.Stats)
		r.Mount("/api/v1/representatives", representatives.SetupRoutes(h))
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("[main] server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// newLimiter picks the Redis limiter when REDIS_URL is set, otherwise the
// in-process one with its background sweep.
func newLimiter(ctx context.Context, cfg config.RateLimit, zl *zap.Logger, m *metrics.Metrics) (ratelimit.Allower, func(), error) {
	if cfg.RedisURL != "" {
		rl, err := ratelimit.NewRedis(cfg.RedisURL, cfg.Window, cfg.Max)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rl.Ping(pingCtx); err != nil {
			zl.Warn("[ratelimit] redis not reachable at startup, requests will be allowed until it is", zap.Error(err))
		}
		zl.Info("[ratelimit] using redis backend", zap.Duration("window", cfg.Window), zap.Int("max", cfg.Max))
		return rl, func() { _ = rl.Close() }, nil
	}

	l := ratelimit.New(cfg.Window, cfg.Max)
	m.TrackGauge("ratelimit_clients", "Clients tracked by the in-process rate limiter.", func() float64 {
		return float64(l.Len())
	})
	go l.Run(ctx, cfg.SweepInterval, func(removed int) {
		if removed > 0 {
			zl.Debug("[ratelimit] swept idle clients", zap.Int("removed", removed))
		}
	})
	zl.Info("[ratelimit] using in-process backend", zap.Duration("window", cfg.Window), zap.Int("max", cfg.Max))
	return l, func() {}, nil
}
