// Package orchestrator mirrors bus traffic into the store and advances job
// state. Both handlers run in the single "orchestrator" consumer group, one
// per stream, and ack only after the database write commits: a store outage
// replays events instead of losing them, and the upsert and guarded status
// transitions make those replays harmless.
package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/bus/redisstream"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
	obsctx "github.com/fairyhunter13/ai-release-gate/internal/observability"
)

// Orchestrator persists analyzer results and release decisions.
type Orchestrator struct {
	jobs      domain.JobRepository
	results   domain.ResultRepository
	decisions domain.DecisionRepository
}

func New(jobs domain.JobRepository, results domain.ResultRepository, decisions domain.DecisionRepository) *Orchestrator {
	return &Orchestrator{jobs: jobs, results: results, decisions: decisions}
}

// HandleAgentResult stores one analyzer verdict and moves a pending job to
// processing. Returning an error leaves the message pending for redelivery;
// domain.ErrMalformedEvent drops it.
func (o *Orchestrator) HandleAgentResult(ctx domain.Context, m redisstream.Message) error {
	var ev domain.AgentResultEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return fmt.Errorf("op=orchestrator.HandleAgentResult: decode agent result: %w", domain.ErrMalformedEvent)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("op=orchestrator.HandleAgentResult: %w", err)
	}

	ctx = obsctx.ContextWithJobID(ctx, ev.JobID)
	res := domain.AgentResult{
		JobID:      ev.JobID,
		AgentName:  ev.AgentName,
		Verdict:    ev.Verdict,
		Confidence: ev.Confidence,
		Payload:    ev.Payload,
		CreatedAt:  ev.Timestamp,
	}
	if err := o.results.Upsert(ctx, res); err != nil {
		return fmt.Errorf("op=orchestrator.HandleAgentResult job=%s: %w", ev.JobID, err)
	}
	if err := o.jobs.MarkProcessing(ctx, ev.JobID); err != nil {
		return fmt.Errorf("op=orchestrator.HandleAgentResult job=%s: %w", ev.JobID, err)
	}

	slog.Default().Info("agent result stored",
		slog.String("job_id", ev.JobID),
		slog.String("agent", ev.AgentName),
		slog.String("verdict", string(ev.Verdict)))
	return nil
}

// HandleReleaseDecision stores the decision and completes the job. The
// decision row's unique job_id makes the first insert win; a conflict means
// an arbiter retry or redelivery got here twice, so the job transition still
// runs and the message acks.
func (o *Orchestrator) HandleReleaseDecision(ctx domain.Context, m redisstream.Message) error {
	var ev domain.ReleaseDecisionEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return fmt.Errorf("op=orchestrator.HandleReleaseDecision: decode release decision: %w", domain.ErrMalformedEvent)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("op=orchestrator.HandleReleaseDecision: %w", err)
	}

	ctx = obsctx.ContextWithJobID(ctx, ev.JobID)
	dec := domain.ReleaseDecision{
		JobID:       ev.JobID,
		Decision:    ev.Decision,
		Explanation: ev.Explanation,
		Summary:     ev.AgentResults,
		CreatedAt:   ev.Timestamp,
	}
	err := o.decisions.Insert(ctx, dec)
	switch {
	case errors.Is(err, domain.ErrConflict):
		slog.Default().Warn("duplicate release decision dropped", slog.String("job_id", ev.JobID))
	case err != nil:
		return fmt.Errorf("op=orchestrator.HandleReleaseDecision job=%s: %w", ev.JobID, err)
	}

	completedAt := ev.Timestamp
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	if err := o.jobs.Complete(ctx, ev.JobID, completedAt); err != nil {
		return fmt.Errorf("op=orchestrator.HandleReleaseDecision job=%s: %w", ev.JobID, err)
	}

	slog.Default().Info("job finalized",
		slog.String("job_id", ev.JobID),
		slog.String("decision", string(ev.Decision)))
	return nil
}
