// Command orchestrator maintains job state. It consumes agent results and
// release decisions from the bus, persists them, moves jobs through their
// lifecycle and sweeps jobs that stopped making progress.
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
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-release-gate/internal/app"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"github.com/fairyhunter13/ai-release-gate/internal/service/orchestrator"
)

func busOptions(cfg config.Config, stream string) redisstream.Options {
	return redisstream.Options{
		Stream:        stream,
		Group:         redisstream.GroupOrchestrator,
		Consumer:      redisstream.ConsumerOrchestrator,
		BatchSize:     int64(cfg.BusBatchSize),
		BlockTimeout:  cfg.BusBlockTimeout,
		ClaimInterval: cfg.BusClaimInterval,
		ClaimMinIdle:  cfg.BusClaimMinIdle,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg, "orchestrator")
	slog.SetDefault(logger)
	observability.SetAppEnv(cfg.AppEnv)
	observability.InitMetrics()

	shutdownTracing, err := observability.SetupTracing(cfg, "orchestrator")
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

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(runCtx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("postgres connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(runCtx, pool); err != nil {
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
	orch := orchestrator.New(jobs, results, decisions)

	resultsConsumer, err := redisstream.NewConsumer(rdb,
		busOptions(cfg, redisstream.StreamAgentResults), orch.HandleAgentResult)
	if err != nil {
		slog.Error("results consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	decisionsConsumer, err := redisstream.NewConsumer(rdb,
		busOptions(cfg, redisstream.StreamReleaseDecisions), orch.HandleReleaseDecision)
	if err != nil {
		slog.Error("decisions consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := resultsConsumer.Start(runCtx); err != nil {
		slog.Error("results consumer start failed", slog.Any("error", err))
		os.Exit(1)
	}
	if err := decisionsConsumer.Start(runCtx); err != nil {
		slog.Error("decisions consumer start failed", slog.Any("error", err))
		os.Exit(1)
	}

	if sweeper := app.NewStuckJobSweeper(jobs, cfg.StuckJobMaxAge(), cfg.StuckJobSweepInterval()); sweeper != nil {
		go sweeper.Run(runCtx)
	}

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, app.RedisAdapter{C: rdb})
	opsSrv := &http.Server{
		Addr:              cfg.OrchestratorAddr(),
		Handler:           app.BuildOpsRouter("orchestrator", dbCheck, redisCheck),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
	go func() {
		slog.Info("orchestrator ops server listening", slog.String("addr", opsSrv.Addr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server error", slog.Any("error", err))
		}
	}()

	slog.Info("orchestrator started", slog.String("env", cfg.AppEnv))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
	cancel()

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer shCancel()
	if err := resultsConsumer.Stop(shCtx); err != nil {
		slog.Error("results consumer stop failed", slog.Any("error", err))
	}
	if err := decisionsConsumer.Stop(shCtx); err != nil {
		slog.Error("decisions consumer stop failed", slog.Any("error", err))
	}
	if err := opsSrv.Shutdown(shCtx); err != nil {
		slog.Error("ops server shutdown failed", slog.Any("error", err))
	}
	slog.Info("orchestrator stopped")
}
