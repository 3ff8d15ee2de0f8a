package usecase

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// AdminService carries the administrative job transitions.
type AdminService struct {
	Jobs domain.JobRepository
}

// NewAdminService constructs an AdminService.
func NewAdminService(j domain.JobRepository) AdminService { return AdminService{Jobs: j} }

// Fail force-fails a job that is still in flight. Unknown ids return
// ErrNotFound; jobs already terminal refuse with ErrConflict.
func (s AdminService) Fail(ctx domain.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("op=admin.Fail id=%q: %w", id, domain.ErrNotFound)
	}
	if err := s.Jobs.Fail(ctx, id); err != nil {
		return fmt.Errorf("op=admin.Fail: %w", err)
	}
	observability.FailJob("admin")
	slog.Warn("job administratively failed", slog.String("job_id", id))
	return nil
}
