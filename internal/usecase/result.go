package usecase

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// List bounds. Callers asking for nothing get a page; callers asking for
// everything get a cap.
const (
	listLimitDefault = 50
	listLimitMax     = 200
)

// JobDetails is the joined gateway view of one job: the row itself, every
// analyzer result received so far, and the decision once the arbiter has
// spoken.
type JobDetails struct {
	Job      domain.Job
	Results  []domain.AgentResult
	Decision *domain.ReleaseDecision
}

// ResultService reads job state for the query endpoints.
type ResultService struct {
	Jobs      domain.JobRepository
	Results   domain.ResultRepository
	Decisions domain.DecisionRepository
}

// NewResultService constructs a ResultService with the given repositories.
func NewResultService(j domain.JobRepository, r domain.ResultRepository, d domain.DecisionRepository) ResultService {
	return ResultService{Jobs: j, Results: r, Decisions: d}
}

// Get returns the joined view of one job. A syntactically invalid id reads
// as absent rather than surfacing a database error; a job without a
// decision yet has Decision nil.
func (s ResultService) Get(ctx domain.Context, id string) (JobDetails, error) {
	if _, err := uuid.Parse(id); err != nil {
		return JobDetails{}, fmt.Errorf("op=result.Get id=%q: %w", id, domain.ErrNotFound)
	}
	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return JobDetails{}, fmt.Errorf("op=result.Get: %w", err)
	}
	results, err := s.Results.ListByJob(ctx, id)
	if err != nil {
		return JobDetails{}, fmt.Errorf("op=result.Get: %w", err)
	}

	details := JobDetails{Job: job, Results: results}
	dec, err := s.Decisions.GetByJob(ctx, id)
	switch {
	case err == nil:
		details.Decision = &dec
	case !errors.Is(err, domain.ErrNotFound):
		return JobDetails{}, fmt.Errorf("op=result.Get: %w", err)
	}
	return details, nil
}

// List returns newest-first job summaries, optionally filtered by
// repository name.
func (s ResultService) List(ctx domain.Context, repoName string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = listLimitDefault
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}
	jobs, err := s.Jobs.List(ctx, repoName, limit)
	if err != nil {
		return nil, fmt.Errorf("op=result.List: %w", err)
	}
	return jobs, nil
}
