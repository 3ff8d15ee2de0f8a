// Command gateway serves the public release-gate HTTP API. It accepts
// analysis requests, persists the job, publishes it to the bus and answers
// status queries.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/bus/redisstream"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-release-gate/internal/app"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"github.com/fairyhunter13/ai-release-gate/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg, "gateway")
	slog.SetDefault(logger)
	observability.SetAppEnv(cfg.AppEnv)
	observability.InitMetrics()

	shutdownTracing, err := observability.SetupTracing(cfg, "gateway")
	if err != nil {
		slog.Error("tracing setup failed", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracing != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(ctx)
		}
	}()

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("postgres connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := redisstream.Connect(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	jobs := postgres.NewJobRepo(pool)
	results := postgres.NewResultRepo(pool)
	decisions := postgres.NewDecisionRepo(pool)
	pub := redisstream.NewPublisher(rdb)

	analyzeSvc := usecase.NewAnalyzeService(jobs, pub)
	resultSvc := usecase.NewResultService(jobs, results, decisions)
	adminSvc := usecase.NewAdminService(jobs)

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, app.RedisAdapter{C: rdb})
	srv := httpserver.NewServer(cfg, analyzeSvc, resultSvc, adminSvc, dbCheck, redisCheck)

	httpSrv := &http.Server{
		Addr:              cfg.GatewayAddr(),
		Handler:           app.BuildGatewayRouter(cfg, srv),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", slog.String("addr", httpSrv.Addr), slog.String("env", cfg.AppEnv))
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shCtx); err != nil {
			slog.Error("graceful shutdown failed", slog.Any("error", err))
		}
	}
	slog.Info("gateway stopped")
}
