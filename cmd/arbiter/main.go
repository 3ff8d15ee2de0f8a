// Command arbiter folds agent results into release decisions. It holds no
// database state; everything it knows lives in memory and is rebuilt from
// unacked bus messages after a restart.
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
	"github.com/fairyhunter13/ai-release-gate/internal/app"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"github.com/fairyhunter13/ai-release-gate/internal/service/arbiter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg, "arbiter")
	slog.SetDefault(logger)
	observability.SetAppEnv(cfg.AppEnv)
	observability.InitMetrics()

	shutdownTracing, err := observability.SetupTracing(cfg, "arbiter")
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

	policy, err := arbiter.LoadPolicy(cfg.ArbiterPolicyPath)
	if err != nil {
		slog.Error("policy load failed", slog.Any("error", err), slog.String("path", cfg.ArbiterPolicyPath))
		os.Exit(1)
	}
	slog.Info("arbiter policy loaded",
		slog.Int("expected_agents", len(policy.Expected)),
		slog.Int("critical_agents", len(policy.Critical)))

	rdb, err := redisstream.Connect(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	arb := arbiter.New(policy, redisstream.NewPublisher(rdb), cfg)

	consumer, err := redisstream.NewConsumer(rdb, redisstream.Options{
		Stream:        redisstream.StreamAgentResults,
		Group:         redisstream.GroupArbiter,
		Consumer:      redisstream.ConsumerArbiter,
		BatchSize:     int64(cfg.BusBatchSize),
		BlockTimeout:  cfg.BusBlockTimeout,
		ClaimInterval: cfg.BusClaimInterval,
		ClaimMinIdle:  cfg.BusClaimMinIdle,
	}, arb.Handle)
	if err != nil {
		slog.Error("consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumer.Start(runCtx); err != nil {
		slog.Error("consumer start failed", slog.Any("error", err))
		os.Exit(1)
	}

	// The arbiter has no database; /readyz probes only the bus.
	_, redisCheck := app.BuildReadinessChecks(nil, app.RedisAdapter{C: rdb})
	opsSrv := &http.Server{
		Addr:              cfg.ArbiterAddr(),
		Handler:           app.BuildOpsRouter("arbiter", nil, redisCheck),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
	go func() {
		slog.Info("arbiter ops server listening", slog.String("addr", opsSrv.Addr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server error", slog.Any("error", err))
		}
	}()

	slog.Info("arbiter started", slog.String("env", cfg.AppEnv))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
	cancel()

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer shCancel()
	if err := consumer.Stop(shCtx); err != nil {
		slog.Error("consumer stop failed", slog.Any("error", err))
	}
	arb.Stop()
	if err := opsSrv.Shutdown(shCtx); err != nil {
		slog.Error("ops server shutdown failed", slog.Any("error", err))
	}
	slog.Info("arbiter stopped")
}
