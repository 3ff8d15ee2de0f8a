package domain

import (
	"fmt"
	"time"
)

// Bus events. Every stream entry is a single "data" field holding one of
// these records JSON-encoded; timestamps travel as RFC 3339 UTC.

// CodeAnalysisRequestedEvent seeds the pipeline. Published by the gateway
// after the job row is durable, carrying the full diff.
type CodeAnalysisRequestedEvent struct {
	JobID         string    `json:"job_id"`
	RepoName      string    `json:"repo_name"`
	CommitHash    string    `json:"commit_hash"`
	CommitMessage string    `json:"commit_message"`
	Diff          string    `json:"diff"`
	Branch        string    `json:"branch"`
	Author        string    `json:"author"`
	Timestamp     time.Time `json:"timestamp"`
}

// Validate rejects events that cannot identify a job.
func (e CodeAnalysisRequestedEvent) Validate() error {
	if e.JobID == "" {
		return fmt.Errorf("analysis request missing job_id: %w", ErrMalformedEvent)
	}
	return nil
}

// AgentResultEvent is one analyzer's report for one job.
type AgentResultEvent struct {
	JobID      string         `json:"job_id"`
	AgentName  string         `json:"agent_name"`
	Verdict    Verdict        `json:"verdict"`
	Confidence float64        `json:"confidence"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Validate enforces the ingress contract: a known verdict and a confidence
// inside [0,1]. Events failing it are dropped, not retried.
func (e AgentResultEvent) Validate() error {
	if e.JobID == "" || e.AgentName == "" {
		return fmt.Errorf("agent result missing job_id or agent_name: %w", ErrMalformedEvent)
	}
	if !e.Verdict.Valid() {
		return fmt.Errorf("agent result verdict %q: %w", e.Verdict, ErrMalformedEvent)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("agent result confidence %v out of range: %w", e.Confidence, ErrMalformedEvent)
	}
	return nil
}

// ReleaseDecisionEvent is the arbiter's final verdict for a job.
type ReleaseDecisionEvent struct {
	JobID          string         `json:"job_id"`
	Decision       Verdict        `json:"decision"`
	Explanation    string         `json:"explanation"`
	AgentResults   []AgentSummary `json:"agent_results"`
	BlockingIssues []string       `json:"blocking_issues,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Validate enforces that a final decision is approve, warn or reject.
func (e ReleaseDecisionEvent) Validate() error {
	if e.JobID == "" {
		return fmt.Errorf("release decision missing job_id: %w", ErrMalformedEvent)
	}
	if !e.Decision.ValidDecision() {
		return fmt.Errorf("release decision %q: %w", e.Decision, ErrMalformedEvent)
	}
	return nil
}

// ClampConfidence forces c into [0,1]. Analyzers apply it before publishing
// so a heuristic slip never produces an event the ingress check would drop.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
