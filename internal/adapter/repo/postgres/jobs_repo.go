package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// JobRepo persists and loads analysis jobs using a minimal pgx pool.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

const jobColumns = `id::text, repo_name, commit_hash, commit_message, branch, author, status, created_at, completed_at`

// Create inserts a new job and returns its id (generates one if empty).
func (r *JobRepo) Create(ctx domain.Context, j domain.Job) (string, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := j.Status
	if status == "" {
		status = domain.JobPending
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO analysis_jobs (id, repo_name, commit_hash, commit_message, branch, author, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.Pool.Exec(ctx, q, id, j.RepoName, j.CommitHash, j.CommitMessage, j.Branch, j.Author, status, created)
	if err != nil {
		return "", fmt.Errorf("op=job.create: %w", err)
	}
	return id, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Get")
	defer span.End()
	q := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var j domain.Job
	if err := row.Scan(&j.ID, &j.RepoName, &j.CommitHash, &j.CommitMessage, &j.Branch, &j.Author, &j.Status, &j.CreatedAt, &j.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// List returns jobs newest first, optionally filtered by repository name.
func (r *JobRepo) List(ctx domain.Context, repoName string, limit int) ([]domain.Job, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.List")
	defer span.End()
	if limit <= 0 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if repoName != "" {
		q := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE repo_name=$1 ORDER BY created_at DESC LIMIT $2`
		rows, err = r.Pool.Query(ctx, q, repoName, limit)
	} else {
		q := `SELECT ` + jobColumns + ` FROM analysis_jobs ORDER BY created_at DESC LIMIT $1`
		rows, err = r.Pool.Query(ctx, q, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.RepoName, &j.CommitHash, &j.CommitMessage, &j.Branch, &j.Author, &j.Status, &j.CreatedAt, &j.CompletedAt); err != nil {
			return nil, fmt.Errorf("op=job.list: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.list: %w", err)
	}
	return out, nil
}

// MarkProcessing moves a pending job to processing. Any other current status
// is left untouched so late or duplicate results never regress a job.
func (r *JobRepo) MarkProcessing(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.MarkProcessing")
	defer span.End()
	q := `UPDATE analysis_jobs SET status=$2 WHERE id=$1 AND status=$3`
	_, err := r.Pool.Exec(ctx, q, id, domain.JobProcessing, domain.JobPending)
	if err != nil {
		return fmt.Errorf("op=job.mark_processing: %w", err)
	}
	return nil
}

// Complete stamps a job completed. Jobs already terminal are left untouched.
func (r *JobRepo) Complete(ctx domain.Context, id string, at time.Time) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Complete")
	defer span.End()
	q := `UPDATE analysis_jobs SET status=$2, completed_at=$3 WHERE id=$1 AND status IN ($4,$5)`
	_, err := r.Pool.Exec(ctx, q, id, domain.JobCompleted, at, domain.JobPending, domain.JobProcessing)
	if err != nil {
		return fmt.Errorf("op=job.complete: %w", err)
	}
	return nil
}

// Fail is the administrative terminal transition. Unknown jobs return
// ErrNotFound; jobs already terminal return ErrConflict.
func (r *JobRepo) Fail(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.Fail")
	defer span.End()
	q := `UPDATE analysis_jobs SET status=$2, completed_at=$3 WHERE id=$1 AND status IN ($4,$5)`
	tag, err := r.Pool.Exec(ctx, q, id, domain.JobFailed, time.Now().UTC(), domain.JobPending, domain.JobProcessing)
	if err != nil {
		return fmt.Errorf("op=job.fail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return fmt.Errorf("op=job.fail: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("op=job.fail: %w", domain.ErrConflict)
	}
	return nil
}

// FailStale fails every non-terminal job created before the cutoff and
// returns how many were swept.
func (r *JobRepo) FailStale(ctx domain.Context, olderThan time.Time) (int64, error) {
	tracer := otel.Tracer("repo.jobs")
	ctx, span := tracer.Start(ctx, "jobs.FailStale")
	defer span.End()
	q := `UPDATE analysis_jobs SET status=$1, completed_at=$2 WHERE status IN ($3,$4) AND created_at < $5`
	tag, err := r.Pool.Exec(ctx, q, domain.JobFailed, time.Now().UTC(), domain.JobPending, domain.JobProcessing, olderThan)
	if err != nil {
		return 0, fmt.Errorf("op=job.fail_stale: %w", err)
	}
	return tag.RowsAffected(), nil
}
