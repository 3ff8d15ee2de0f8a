package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

// schemaStatements is executed in order on startup. Every statement is
// idempotent so concurrent processes can race to apply them.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS analysis_jobs (
		id UUID PRIMARY KEY,
		repo_name TEXT NOT NULL,
		commit_hash TEXT NOT NULL,
		commit_message TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_repo_name ON analysis_jobs (repo_name)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_commit_hash ON analysis_jobs (commit_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_created_at ON analysis_jobs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS agent_results (
		id BIGSERIAL PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES analysis_jobs(id) ON DELETE CASCADE,
		agent_name TEXT NOT NULL,
		verdict TEXT NOT NULL
			CHECK (verdict IN ('approve', 'warn', 'reject', 'skip')),
		confidence DOUBLE PRECISION NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (job_id, agent_name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_results_job_id ON agent_results (job_id)`,
	`CREATE TABLE IF NOT EXISTS release_decisions (
		id BIGSERIAL PRIMARY KEY,
		job_id UUID NOT NULL UNIQUE REFERENCES analysis_jobs(id) ON DELETE CASCADE,
		decision TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		agent_results_summary JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema applies the table and index definitions. The gateway and
// orchestrator both call this at startup; whoever gets there first wins.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("op=postgres.EnsureSchema: %w", err)
		}
	}
	slog.Info("database schema ensured")
	return nil
}
