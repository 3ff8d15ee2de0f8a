package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// DecisionRepo persists and loads release decisions from PostgreSQL.
type DecisionRepo struct{ Pool PgxPool }

// NewDecisionRepo constructs a DecisionRepo with the given pool.
func NewDecisionRepo(p PgxPool) *DecisionRepo { return &DecisionRepo{Pool: p} }

// Insert stores a decision. The job_id unique constraint makes the first
// decision win; any later one surfaces as ErrConflict.
func (r *DecisionRepo) Insert(ctx domain.Context, d domain.ReleaseDecision) error {
	tracer := otel.Tracer("repo.decisions")
	ctx, span := tracer.Start(ctx, "decisions.Insert")
	defer span.End()
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	summary := d.Summary
	if summary == nil {
		summary = []domain.AgentSummary{}
	}
	q := `INSERT INTO release_decisions (job_id, decision, explanation, agent_results_summary, created_at) VALUES ($1,$2,$3,$4,$5)`
	_, err := r.Pool.Exec(ctx, q, d.JobID, d.Decision, d.Explanation, summary, created)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("op=decision.insert job_id=%s: %w", d.JobID, domain.ErrConflict)
		}
		return fmt.Errorf("op=decision.insert: %w", err)
	}
	return nil
}

// GetByJob loads the decision for a job.
func (r *DecisionRepo) GetByJob(ctx domain.Context, jobID string) (domain.ReleaseDecision, error) {
	tracer := otel.Tracer("repo.decisions")
	ctx, span := tracer.Start(ctx, "decisions.GetByJob")
	defer span.End()
	q := `SELECT job_id::text, decision, explanation, agent_results_summary, created_at FROM release_decisions WHERE job_id=$1`
	row := r.Pool.QueryRow(ctx, q, jobID)
	var d domain.ReleaseDecision
	if err := row.Scan(&d.JobID, &d.Decision, &d.Explanation, &d.Summary, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReleaseDecision{}, fmt.Errorf("op=decision.get: %w", domain.ErrNotFound)
		}
		return domain.ReleaseDecision{}, fmt.Errorf("op=decision.get: %w", err)
	}
	return d, nil
}
