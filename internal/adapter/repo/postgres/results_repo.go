package postgres

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
	"go.opentelemetry.io/otel"
)

// ResultRepo persists and loads analyzer results from PostgreSQL.
type ResultRepo struct{ Pool PgxPool }

// NewResultRepo constructs a ResultRepo with the given pool.
func NewResultRepo(p PgxPool) *ResultRepo { return &ResultRepo{Pool: p} }

// Upsert inserts or updates a result by (job_id, agent_name), so a redelivered
// verdict overwrites rather than duplicates.
func (r *ResultRepo) Upsert(ctx domain.Context, res domain.AgentResult) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Upsert")
	defer span.End()
	created := res.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	payload := res.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	q := `INSERT INTO agent_results (job_id, agent_name, verdict, confidence, payload, created_at)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (job_id, agent_name)
	DO UPDATE SET verdict=EXCLUDED.verdict, confidence=EXCLUDED.confidence, payload=EXCLUDED.payload`
	_, err := r.Pool.Exec(ctx, q, res.JobID, res.AgentName, res.Verdict, res.Confidence, payload, created)
	if err != nil {
		return fmt.Errorf("op=result.upsert: %w", err)
	}
	return nil
}

// ListByJob loads every analyzer result for a job, oldest first.
func (r *ResultRepo) ListByJob(ctx domain.Context, jobID string) ([]domain.AgentResult, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.ListByJob")
	defer span.End()
	q := `SELECT job_id::text, agent_name, verdict, confidence, payload, created_at FROM agent_results WHERE job_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.Pool.Query(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("op=result.list: %w", err)
	}
	defer rows.Close()
	var out []domain.AgentResult
	for rows.Next() {
		var res domain.AgentResult
		if err := rows.Scan(&res.JobID, &res.AgentName, &res.Verdict, &res.Confidence, &res.Payload, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=result.list: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=result.list: %w", err)
	}
	return out, nil
}
