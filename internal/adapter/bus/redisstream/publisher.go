package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// Publisher writes pipeline events to Redis Streams and implements
// domain.Publisher.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher constructs a Publisher on an existing client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishAnalysisRequest fans a new job out to every analyzer group.
func (p *Publisher) PublishAnalysisRequest(ctx domain.Context, ev domain.CodeAnalysisRequestedEvent) (string, error) {
	return p.publish(ctx, StreamAnalysisRequested, ev.JobID, ev)
}

// PublishAgentResult reports one analyzer verdict.
func (p *Publisher) PublishAgentResult(ctx domain.Context, ev domain.AgentResultEvent) (string, error) {
	return p.publish(ctx, StreamAgentResults, ev.JobID, ev)
}

// PublishReleaseDecision announces the final verdict for a job.
func (p *Publisher) PublishReleaseDecision(ctx domain.Context, ev domain.ReleaseDecisionEvent) (string, error) {
	return p.publish(ctx, StreamReleaseDecisions, ev.JobID, ev)
}

func (p *Publisher) publish(ctx context.Context, stream, jobID string, ev any) (string, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("op=redisstream.publish stream=%s: %w", stream, err)
	}
	id, err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{dataField: string(b)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("op=redisstream.publish stream=%s: %w", stream, err)
	}
	observability.PublishMessage(stream)
	slog.Debug("event published",
		slog.String("stream", stream),
		slog.String("job_id", jobID),
		slog.String("message_id", id))
	return id, nil
}
