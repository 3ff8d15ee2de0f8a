package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// StuckJobSweeper periodically fails jobs that sat in pending or processing
// past a maximum age. This is the safety net for jobs whose bus messages
// were lost beyond what redelivery can recover.
type StuckJobSweeper struct {
	jobs     domain.JobRepository
	maxAge   time.Duration
	interval time.Duration
}

// NewStuckJobSweeper builds a sweeper; nil jobs yields a nil sweeper whose
// Run is a no-op.
func NewStuckJobSweeper(jobs domain.JobRepository, maxAge, interval time.Duration) *StuckJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{jobs: jobs, maxAge: maxAge, interval: interval}
}

// Run sweeps once immediately, then on every tick until the context ends.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()
	span.SetAttributes(attribute.Float64("jobs.max_age_seconds", s.maxAge.Seconds()))

	cutoff := time.Now().UTC().Add(-s.maxAge)
	n, err := s.jobs.FailStale(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck job sweep failed", slog.Any("error", err))
		return
	}
	span.SetAttributes(attribute.Int64("jobs.failed", n))
	if n > 0 {
		for i := int64(0); i < n; i++ {
			observability.FailJob("stale")
		}
		slog.Warn("stale jobs failed by sweeper",
			slog.Int64("count", n),
			slog.Duration("max_age", s.maxAge))
	}
}
