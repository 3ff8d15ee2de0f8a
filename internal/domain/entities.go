package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrMalformedEvent  = errors.New("malformed event")
	ErrNoProviders     = errors.New("no llm providers configured")
	ErrInternal        = errors.New("internal error")
)

// Analyzer names. Each runs as its own consumer group on the analysis stream.
const (
	AgentDiff        = "diff"
	AgentIntent      = "intent"
	AgentSecurity    = "security"
	AgentPerformance = "performance"
	AgentTest        = "test"
)

// ExpectedAgents lists every analyzer the arbiter waits for.
func ExpectedAgents() []string {
	return []string{AgentDiff, AgentIntent, AgentSecurity, AgentPerformance, AgentTest}
}

//go:generate mockery --name=JobRepository --with-expecter --filename=job_repository_mock.go
//go:generate mockery --name=ResultRepository --with-expecter --filename=result_repository_mock.go
//go:generate mockery --name=DecisionRepository --with-expecter --filename=decision_repository_mock.go
//go:generate mockery --name=Publisher --with-expecter --filename=publisher_mock.go

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// CanTransitionTo reports whether the status machine allows s -> t.
// pending -> processing -> completed is the only forward path; failed is
// terminal and reachable from any non-completed state.
func (s JobStatus) CanTransitionTo(t JobStatus) bool {
	switch s {
	case JobPending:
		return t == JobProcessing || t == JobCompleted || t == JobFailed
	case JobProcessing:
		return t == JobCompleted || t == JobFailed
	default:
		return false
	}
}

type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictWarn    Verdict = "warn"
	VerdictReject  Verdict = "reject"
	VerdictSkip    Verdict = "skip"
)

// Valid reports whether v is one of the four agent verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApprove, VerdictWarn, VerdictReject, VerdictSkip:
		return true
	}
	return false
}

// ValidDecision reports whether v may appear as a final release decision.
// skip is an agent-local verdict only.
func (v Verdict) ValidDecision() bool {
	switch v {
	case VerdictApprove, VerdictWarn, VerdictReject:
		return true
	}
	return false
}

// Job is one analysis request as persisted. Created by the gateway, mutated
// only by the orchestrator (and the administrative fail path), never deleted.
type Job struct {
	ID            string
	RepoName      string
	CommitHash    string
	CommitMessage string
	Branch        string
	Author        string
	Status        JobStatus
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// AgentResult is one analyzer's verdict for a job. Logically unique per
// (JobID, AgentName); the store upserts so duplicate bus deliveries collapse.
type AgentResult struct {
	JobID      string
	AgentName  string
	Verdict    Verdict
	Confidence float64
	Payload    map[string]any
	CreatedAt  time.Time
}

// ReleaseDecision is the arbiter's final word for a job, one-to-one with Job.
type ReleaseDecision struct {
	JobID       string
	Decision    Verdict
	Explanation string
	Summary     []AgentSummary
	CreatedAt   time.Time
}

// AgentSummary is the compact per-agent line stored with a decision.
type AgentSummary struct {
	AgentName  string  `json:"agent_name"`
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
}

// Repositories (ports)

type JobRepository interface {
	Create(ctx Context, j Job) (string, error)
	Get(ctx Context, id string) (Job, error)
	List(ctx Context, repoName string, limit int) ([]Job, error)
	// MarkProcessing moves a pending job to processing; a no-op for any
	// other current status.
	MarkProcessing(ctx Context, id string) error
	// Complete stamps completed_at and moves the job to completed; jobs
	// already terminal are left untouched.
	Complete(ctx Context, id string, at time.Time) error
	// Fail is the administrative terminal transition. Jobs already
	// terminal return ErrConflict.
	Fail(ctx Context, id string) error
	// FailStale fails non-terminal jobs older than the cutoff and returns
	// how many were swept.
	FailStale(ctx Context, olderThan time.Time) (int64, error)
}

type ResultRepository interface {
	Upsert(ctx Context, r AgentResult) error
	ListByJob(ctx Context, jobID string) ([]AgentResult, error)
}

type DecisionRepository interface {
	// Insert stores a decision; a second decision for the same job returns
	// ErrConflict.
	Insert(ctx Context, d ReleaseDecision) error
	GetByJob(ctx Context, jobID string) (ReleaseDecision, error)
}

// Publisher (port): the producing half of the message bus.

type Publisher interface {
	PublishAnalysisRequest(ctx Context, ev CodeAnalysisRequestedEvent) (string, error)
	PublishAgentResult(ctx Context, ev AgentResultEvent) (string, error)
	PublishReleaseDecision(ctx Context, ev ReleaseDecisionEvent) (string, error)
}

// LLMClient (port)

type LLMClient interface {
	Complete(ctx Context, req CompletionRequest) (string, error)
}

type CompletionRequest struct {
	SystemPrompt string
	Prompt       string
	Temperature  float64
	MaxTokens    int
}

// Context is an alias so domain signatures stay decoupled from the stdlib
// import path; adapters and usecases pass context.Context straight through.
type Context = context.Context
