// Package arbiter folds the per-agent verdicts for a job into exactly one
// release decision. Results accumulate in memory keyed by agent; a deadline
// timer armed at the first result bounds how long a job waits for stragglers.
// A job decides early the moment every expected agent has reported.
//
// Publishing twice is defended twice: locally, state is dropped under the
// mutex before a second decide can run, and a published marker absorbs late
// results; downstream, the orchestrator's unique decision row per job drops
// anything that slips through anyway.
package arbiter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/bus/redisstream"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
	obsctx "github.com/fairyhunter13/ai-release-gate/internal/observability"
)

// decisionRetryDelay spaces out re-attempts when publishing a decision
// fails after the job's timer already fired.
const decisionRetryDelay = 5 * time.Second

// pendingJob is the accumulated state for one undecided job. results is
// keyed by agent so a redelivered result is a no-op; order preserves arrival
// sequence for the explanation text.
type pendingJob struct {
	results  map[string]domain.AgentResultEvent
	order    []string
	timer    *time.Timer
	deciding bool
}

func (p *pendingJob) snapshot() []domain.AgentResultEvent {
	out := make([]domain.AgentResultEvent, 0, len(p.order))
	for _, agent := range p.order {
		out = append(out, p.results[agent])
	}
	return out
}

// Arbiter consumes agent_results and publishes release_decisions.
type Arbiter struct {
	policy Policy
	pub    domain.Publisher
	wait   time.Duration
	retry  time.Duration

	mu        sync.Mutex
	pending   map[string]*pendingJob
	published map[string]time.Time
	lastPrune time.Time
	stopped   bool
}

func New(policy Policy, pub domain.Publisher, cfg config.Config) *Arbiter {
	return &Arbiter{
		policy:    policy,
		pub:       pub,
		wait:      cfg.ArbiterWaitTimeout(),
		retry:     decisionRetryDelay,
		pending:   map[string]*pendingJob{},
		published: map[string]time.Time{},
	}
}

// Handle processes one agent result. Returning an error leaves the message
// pending for redelivery; domain.ErrMalformedEvent drops it.
func (w *Arbiter) Handle(ctx domain.Context, m redisstream.Message) error {
	var ev domain.AgentResultEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return fmt.Errorf("op=arbiter.Handle: decode agent result: %w", domain.ErrMalformedEvent)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("op=arbiter.Handle: %w", err)
	}

	ctx = obsctx.ContextWithJobID(ctx, ev.JobID)
	log := slog.Default().With(slog.String("job_id", ev.JobID), slog.String("agent", ev.AgentName))

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("op=arbiter.Handle: arbiter stopped: %w", context.Canceled)
	}
	w.prunePublishedLocked(time.Now())
	if _, done := w.published[ev.JobID]; done {
		w.mu.Unlock()
		log.Debug("result arrived after decision, dropping")
		return nil
	}

	p := w.pending[ev.JobID]
	if p == nil {
		p = &pendingJob{results: map[string]domain.AgentResultEvent{}}
		w.pending[ev.JobID] = p
	}
	if _, dup := p.results[ev.AgentName]; dup {
		log.Debug("duplicate agent result, ignoring")
	} else {
		p.results[ev.AgentName] = ev
		p.order = append(p.order, ev.AgentName)
		log.Info("agent result collected",
			slog.String("verdict", string(ev.Verdict)),
			slog.Int("received", len(p.results)),
			slog.Int("expected", len(w.policy.Expected)))
	}
	observability.SetArbiterPending(len(w.pending))

	complete := w.policy.Covers(p.results)
	if !complete && p.timer == nil {
		jobID := ev.JobID
		p.timer = time.AfterFunc(w.wait, func() { w.timerFire(jobID) })
	}
	w.mu.Unlock()

	if complete {
		return w.decide(ctx, ev.JobID, "all analyzers reported")
	}
	return nil
}

// decide publishes the decision for jobID exactly once. State is dropped
// only after a successful publish so a transient bus error can be retried;
// the deciding flag keeps a concurrent timer fire from publishing twice.
func (w *Arbiter) decide(ctx domain.Context, jobID, trigger string) error {
	w.mu.Lock()
	p, ok := w.pending[jobID]
	if !ok || p.deciding {
		w.mu.Unlock()
		return nil
	}
	p.deciding = true
	results := p.snapshot()
	w.mu.Unlock()

	tracer := otel.Tracer("arbiter")
	ctx, span := tracer.Start(ctx, "decide")
	span.SetAttributes(attribute.String("job_id", jobID), attribute.String("trigger", trigger))
	defer span.End()

	ev := w.buildDecision(jobID, results)
	if _, err := w.pub.PublishReleaseDecision(ctx, ev); err != nil {
		span.RecordError(err)
		w.mu.Lock()
		p.deciding = false
		w.mu.Unlock()
		return fmt.Errorf("op=arbiter.decide job=%s: publish: %w", jobID, err)
	}

	w.mu.Lock()
	delete(w.pending, jobID)
	if p.timer != nil {
		p.timer.Stop()
	}
	w.published[jobID] = time.Now()
	observability.SetArbiterPending(len(w.pending))
	w.mu.Unlock()

	score := w.policy.WeightedScore(results)
	observability.RecordDecision(string(ev.Decision), score)
	slog.Default().Info("release decision published",
		slog.String("job_id", jobID),
		slog.String("decision", string(ev.Decision)),
		slog.Float64("score", score),
		slog.Int("results", len(results)),
		slog.String("trigger", trigger))
	return nil
}

// timerFire runs when a job's fan-in deadline expires. A failed publish
// re-arms a short retry timer so the decision is not lost.
func (w *Arbiter) timerFire(jobID string) {
	err := w.decide(context.Background(), jobID, "wait timeout")
	if err == nil {
		return
	}
	slog.Default().Error("decision publish failed, will retry",
		slog.String("job_id", jobID), slog.Any("error", err))
	w.mu.Lock()
	if p, ok := w.pending[jobID]; ok && !w.stopped {
		p.timer = time.AfterFunc(w.retry, func() { w.timerFire(jobID) })
	}
	w.mu.Unlock()
}

// buildDecision turns collected results into the decision event. An empty
// result set is the degenerate timer path and rejects outright.
func (w *Arbiter) buildDecision(jobID string, results []domain.AgentResultEvent) domain.ReleaseDecisionEvent {
	if len(results) == 0 {
		return domain.ReleaseDecisionEvent{
			JobID:        jobID,
			Decision:     domain.VerdictReject,
			Explanation:  "no analyzer reported",
			AgentResults: []domain.AgentSummary{},
			Timestamp:    time.Now().UTC(),
		}
	}

	score := w.policy.WeightedScore(results)
	decision := w.policy.FinalVerdict(results, score)

	summaries := make([]domain.AgentSummary, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, domain.AgentSummary{AgentName: r.AgentName, Verdict: r.Verdict, Confidence: r.Confidence})
	}

	return domain.ReleaseDecisionEvent{
		JobID:          jobID,
		Decision:       decision,
		Explanation:    explanation(results, score, decision),
		AgentResults:   summaries,
		BlockingIssues: blockingIssues(results),
		Timestamp:      time.Now().UTC(),
	}
}

// Stop cancels every pending timer and refuses further results. Unacked
// agent_results replay from the bus on restart and rebuild the state.
func (w *Arbiter) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for _, p := range w.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	w.pending = map[string]*pendingJob{}
	observability.SetArbiterPending(0)
}

// prunePublishedLocked bounds the published-marker map. Markers only need
// to outlive late redeliveries, so anything older than twice the wait
// window goes. Runs at most once a minute.
func (w *Arbiter) prunePublishedLocked(now time.Time) {
	if now.Sub(w.lastPrune) < time.Minute {
		return
	}
	w.lastPrune = now
	cutoff := now.Add(-2 * w.wait)
	for id, at := range w.published {
		if at.Before(cutoff) {
			delete(w.published, id)
		}
	}
}

// explanation renders the decision text: the verdict, the score, one line
// per agent and a Key Concerns section when anything warned or rejected.
func explanation(results []domain.AgentResultEvent, score float64, decision domain.Verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release decision: %s\n", strings.ToUpper(string(decision)))
	fmt.Fprintf(&b, "Overall confidence score: %.2f\n\nAgent Verdicts:", score)
	for _, r := range results {
		fmt.Fprintf(&b, "\n- %s: %s (confidence: %.2f)", r.AgentName, r.Verdict, r.Confidence)
	}

	var concerns []domain.AgentResultEvent
	for _, r := range results {
		if r.Verdict == domain.VerdictWarn || r.Verdict == domain.VerdictReject {
			concerns = append(concerns, r)
		}
	}
	if len(concerns) > 0 {
		b.WriteString("\n\nKey Concerns:")
		for _, r := range concerns {
			fmt.Fprintf(&b, "\n- %s: %s", r.AgentName, r.Verdict)
		}
	}
	return b.String()
}

func blockingIssues(results []domain.AgentResultEvent) []string {
	var blocking []string
	for _, r := range results {
		if r.Verdict == domain.VerdictReject {
			blocking = append(blocking, r.AgentName+": Critical issues detected")
		}
	}
	return blocking
}
