package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beaconflags/beacon/internal/app"
	"github.com/beaconflags/beacon/internal/flags"
	"github.com/beaconflags/beacon/internal/observability"
	"github.com/beaconflags/beacon/internal/platform/db"
	"github.com/beaconflags/beacon/internal/platform/db/migrations"
	"github.com/beaconflags/beacon/internal/platform/ratelimit"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	if err := flags.SetupCacheMetrics(metrics.Registerer()); err != nil {
		logger.Warn("register cache metrics", slog.Any("error", err))
	}

	cache, err := flags.NewCache(cfg.CacheTTL(), cfg.CacheMaxSize)
	if err != nil {
		logger.Error("build evaluation cache", slog.Any("error", err))
		os.Exit(1)
	}

	repo := flags.NewRepository(pool)
	evaluator := flags.NewEvaluator(repo, cache)
	invalidator := flags.NewInvalidator(cache, logger)
	service := flags.NewService(repo, invalidator)
	handler := flags.NewHandler(logger, service, evaluator)

	evalLimiter := ratelimit.New(redisClient, logger, "beacon:eval", cfg.EvalRateLimit, cfg.EvalRateWindow)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		FlagsHandler: handler,
		EvalLimiter:  evalLimiter,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
