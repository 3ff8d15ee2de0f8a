// Package redisstream provides the Redis Streams event bus.
//
// It handles event publishing and consumption for the analysis
// pipeline. Consumer groups give each service an independent cursor on
// a stream, so every analyzer sees every job while the arbiter and
// orchestrator read the same traffic at their own pace. Messages left
// unacknowledged by a stalled consumer are reclaimed after a minimum
// idle time.
package redisstream

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	// StreamAnalysisRequested carries new jobs from the gateway to the
	// analyzers.
	StreamAnalysisRequested = "code_analysis_requested"
	// StreamAgentResults carries analyzer verdicts to the arbiter and
	// orchestrator.
	StreamAgentResults = "agent_results"
	// StreamReleaseDecisions carries final decisions from the arbiter.
	StreamReleaseDecisions = "release_decisions"
)

// dataField is the single stream entry field holding the JSON payload.
const dataField = "data"

const (
	GroupArbiter         = "arbiter"
	ConsumerArbiter      = "arbiter_1"
	GroupOrchestrator    = "orchestrator"
	ConsumerOrchestrator = "orchestrator-1"
)

// AgentGroup returns the consumer group an analyzer joins on the request
// stream. Each analyzer has its own group so the stream fans out.
func AgentGroup(agent string) string { return agent + "_group" }

// AgentConsumer returns the consumer name an analyzer registers within its
// group.
func AgentConsumer(agent string) string { return agent + "_1" }

// Connect creates a go-redis client from a redis:// URL. Connections are
// established lazily; readiness probes ping separately.
func Connect(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=redisstream.Connect: %w", err)
	}
	return redis.NewClient(opt), nil
}
