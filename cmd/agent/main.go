// Command agent runs one analyzer worker. AGENT_NAME selects which analyzer
// this process hosts; each analyzer consumes the analysis stream in its own
// group, so running all five gives every commit the full panel.
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

	ai "github.com/fairyhunter13/ai-release-gate/internal/adapter/ai"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/bus/redisstream"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/app"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"github.com/fairyhunter13/ai-release-gate/internal/service/agent"
	"github.com/fairyhunter13/ai-release-gate/internal/service/ratelimiter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	name := cfg.AgentName
	if name == "" {
		slog.Error("AGENT_NAME is required")
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg, name+"_agent")
	slog.SetDefault(logger)
	observability.SetAppEnv(cfg.AppEnv)
	observability.InitMetrics()

	shutdownTracing, err := observability.SetupTracing(cfg, name+"_agent")
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

	addr, err := cfg.AgentAddr(name)
	if err != nil {
		slog.Error("unknown agent", slog.String("agent", name), slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := redisstream.Connect(cfg.RedisURL)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	// One bucket per provider, shared across every agent process through
	// Redis, so the fleet respects a single provider budget.
	bucket := ratelimiter.NewBucketConfigFromPerMinute(cfg.LLMRateLimitPerMinute)
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		"llm:openai":    bucket,
		"llm:anthropic": bucket,
	})
	llm := ai.New(cfg, limiter)

	analyzer, err := agent.ForName(name, llm)
	if err != nil {
		slog.Error("analyzer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	worker := agent.NewWorker(analyzer, redisstream.NewPublisher(rdb), cfg)

	consumer, err := redisstream.NewConsumer(rdb, redisstream.Options{
		Stream:        redisstream.StreamAnalysisRequested,
		Group:         redisstream.AgentGroup(name),
		Consumer:      redisstream.AgentConsumer(name),
		BatchSize:     int64(cfg.BusBatchSize),
		BlockTimeout:  cfg.BusBlockTimeout,
		ClaimInterval: cfg.BusClaimInterval,
		ClaimMinIdle:  cfg.BusClaimMinIdle,
	}, worker.Handle)
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

	_, redisCheck := app.BuildReadinessChecks(nil, app.RedisAdapter{C: rdb})
	opsSrv := &http.Server{
		Addr:              addr,
		Handler:           app.BuildOpsRouter(name+"_agent", nil, redisCheck),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}
	go func() {
		slog.Info("agent ops server listening", slog.String("agent", name), slog.String("addr", opsSrv.Addr))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server error", slog.Any("error", err))
		}
	}()

	slog.Info("agent started", slog.String("agent", name), slog.String("env", cfg.AppEnv))
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
	if err := opsSrv.Shutdown(shCtx); err != nil {
		slog.Error("ops server shutdown failed", slog.Any("error", err))
	}
	slog.Info("agent stopped", slog.String("agent", name))
}
