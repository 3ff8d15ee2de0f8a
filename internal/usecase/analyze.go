// Package usecase contains the application services behind the gateway API.
package usecase

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
	obsctx "github.com/fairyhunter13/ai-release-gate/internal/observability"
)

// AnalyzeRequest is the create-job input. The HTTP layer owns the full
// syntactic contract; the service re-checks only what the pipeline cannot
// run without.
type AnalyzeRequest struct {
	RepoName      string
	CommitHash    string
	CommitMessage string
	Diff          string
	Branch        string
	Author        string
}

// AnalyzeService owns the create-job protocol: persist first, publish
// second, so an event never references a job row that does not exist yet.
type AnalyzeService struct {
	Jobs domain.JobRepository
	Bus  domain.Publisher
}

// NewAnalyzeService constructs an AnalyzeService with its dependencies.
func NewAnalyzeService(j domain.JobRepository, p domain.Publisher) AnalyzeService {
	return AnalyzeService{Jobs: j, Bus: p}
}

// Submit persists a pending job and announces it on the bus. When the
// publish fails the persisted job is returned together with the error: the
// row stays pending and replayable under its stable id, and the HTTP layer
// reports the degraded outcome instead of a plain server error.
func (s AnalyzeService) Submit(ctx domain.Context, req AnalyzeRequest) (domain.Job, error) {
	if req.RepoName == "" || req.CommitHash == "" || req.Diff == "" {
		return domain.Job{}, fmt.Errorf("op=analyze.Submit: repo_name, commit_hash and diff are required: %w", domain.ErrInvalidArgument)
	}
	branch := req.Branch
	if branch == "" {
		branch = "main"
	}

	now := time.Now().UTC()
	job := domain.Job{
		ID:            uuid.New().String(),
		RepoName:      req.RepoName,
		CommitHash:    req.CommitHash,
		CommitMessage: req.CommitMessage,
		Branch:        branch,
		Author:        req.Author,
		Status:        domain.JobPending,
		CreatedAt:     now,
	}
	id, err := s.Jobs.Create(ctx, job)
	if err != nil {
		return domain.Job{}, fmt.Errorf("op=analyze.Submit: %w", err)
	}
	job.ID = id
	observability.CreateJob()

	ctx = obsctx.ContextWithJobID(ctx, id)
	ev := domain.CodeAnalysisRequestedEvent{
		JobID:         id,
		RepoName:      req.RepoName,
		CommitHash:    req.CommitHash,
		CommitMessage: req.CommitMessage,
		Diff:          req.Diff,
		Branch:        branch,
		Author:        req.Author,
		Timestamp:     now,
	}
	if _, err := s.Bus.PublishAnalysisRequest(ctx, ev); err != nil {
		slog.Error("job persisted but analysis request publish failed",
			slog.String("job_id", id), slog.Any("error", err))
		return job, fmt.Errorf("op=analyze.Submit job=%s: publish: %w", id, err)
	}

	slog.Info("analysis job created",
		slog.String("job_id", id),
		slog.String("repo", req.RepoName),
		slog.String("commit", req.CommitHash))
	return job, nil
}
