// Package agent hosts the analyzer workers. Each analyzer consumes
// code_analysis_requested in its own consumer group, examines the commit and
// diff, and publishes exactly one agent_results event per request.
//
// The Worker owns the delivery protocol; analyzers only turn a request into
// a verdict. Analyzer failures leave the message pending so the bus retries
// it; once the retry budget is spent the Worker publishes a skip verdict so
// the arbiter still hears from this agent.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/bus/redisstream"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
	obsctx "github.com/fairyhunter13/ai-release-gate/internal/observability"
)

// Analyzer examines one code change and reports a verdict. Analyze must be
// idempotent: the bus delivers at least once, so the same request may be
// analyzed again after a crash.
type Analyzer interface {
	Name() string
	Analyze(ctx domain.Context, req domain.CodeAnalysisRequestedEvent) (domain.Verdict, float64, map[string]any, error)
}

// ForName returns the analyzer registered under name. LLM-backed analyzers
// receive llm; the others ignore it.
func ForName(name string, llm domain.LLMClient) (Analyzer, error) {
	switch name {
	case domain.AgentDiff:
		return NewDiffAnalyzer(), nil
	case domain.AgentIntent:
		return NewIntentAnalyzer(llm), nil
	case domain.AgentSecurity:
		return NewSecurityAnalyzer(llm), nil
	case domain.AgentPerformance:
		return NewPerformanceAnalyzer(llm), nil
	case domain.AgentTest:
		return NewTestAnalyzer(), nil
	}
	return nil, fmt.Errorf("op=agent.ForName: unknown analyzer %q: %w", name, domain.ErrInvalidArgument)
}

// Worker runs one analyzer against the analysis stream.
type Worker struct {
	analyzer   Analyzer
	pub        domain.Publisher
	timeout    time.Duration
	maxRetries int64
}

// NewWorker wires an analyzer to the publisher with the configured deadline
// and retry budget.
func NewWorker(analyzer Analyzer, pub domain.Publisher, cfg config.Config) *Worker {
	return &Worker{
		analyzer:   analyzer,
		pub:        pub,
		timeout:    cfg.AgentTimeout(),
		maxRetries: int64(cfg.MaxRetries),
	}
}

// Handle processes one analysis request. Returning an error leaves the
// message pending for redelivery; domain.ErrMalformedEvent drops it.
func (w *Worker) Handle(ctx domain.Context, m redisstream.Message) error {
	var ev domain.CodeAnalysisRequestedEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return fmt.Errorf("op=agent.Handle: decode analysis request: %w", domain.ErrMalformedEvent)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("op=agent.Handle: %w", err)
	}

	ctx = obsctx.ContextWithJobID(ctx, ev.JobID)
	log := slog.Default().With(slog.String("agent", w.analyzer.Name()), slog.String("job_id", ev.JobID))

	// Retry budget exhausted: report a neutral skip so the arbiter is not
	// left waiting on this agent, then ack by returning nil.
	if m.Deliveries > w.maxRetries {
		log.Warn("retry budget exhausted, publishing skip", slog.Int64("deliveries", m.Deliveries))
		return w.publishSkip(ctx, ev, m.Deliveries)
	}

	tracer := otel.Tracer("agent." + w.analyzer.Name())
	ctx, span := tracer.Start(ctx, "analyze")
	span.SetAttributes(attribute.String("job_id", ev.JobID))
	defer span.End()

	actx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	verdict, confidence, payload, err := w.analyzer.Analyze(actx, ev)
	if err != nil {
		span.RecordError(err)
		log.Error("analysis failed, leaving message pending", slog.Any("error", err))
		return fmt.Errorf("op=agent.Handle agent=%s: %w", w.analyzer.Name(), err)
	}

	out := domain.AgentResultEvent{
		JobID:      ev.JobID,
		AgentName:  w.analyzer.Name(),
		Verdict:    verdict,
		Confidence: domain.ClampConfidence(confidence),
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
	if _, err := w.pub.PublishAgentResult(ctx, out); err != nil {
		log.Error("failed to publish result, leaving message pending", slog.Any("error", err))
		return fmt.Errorf("op=agent.Handle agent=%s: publish: %w", w.analyzer.Name(), err)
	}

	observability.RecordAgentResult(w.analyzer.Name(), string(out.Verdict), time.Since(start))
	log.Info("analysis complete",
		slog.String("verdict", string(out.Verdict)),
		slog.Float64("confidence", out.Confidence),
		slog.Duration("took", time.Since(start)))
	return nil
}

func (w *Worker) publishSkip(ctx domain.Context, ev domain.CodeAnalysisRequestedEvent, deliveries int64) error {
	out := domain.AgentResultEvent{
		JobID:      ev.JobID,
		AgentName:  w.analyzer.Name(),
		Verdict:    domain.VerdictSkip,
		Confidence: 0.5,
		Payload: map[string]any{
			"error":      "analysis retries exhausted",
			"deliveries": deliveries,
		},
		Timestamp: time.Now().UTC(),
	}
	if _, err := w.pub.PublishAgentResult(ctx, out); err != nil {
		return fmt.Errorf("op=agent.publishSkip agent=%s: %w", w.analyzer.Name(), err)
	}
	observability.RecordAgentResult(w.analyzer.Name(), string(domain.VerdictSkip), 0)
	return nil
}
