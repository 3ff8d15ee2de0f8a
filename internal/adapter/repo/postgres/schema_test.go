package postgres_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/repo/postgres"
)

func TestEnsureSchema(t *testing.T) {
	pool := &poolStub{}
	require.NoError(t, postgres.EnsureSchema(context.Background(), pool))
	require.NotEmpty(t, pool.execCalls)

	var tables []string
	for _, c := range pool.execCalls {
		if strings.Contains(c.sql, "CREATE TABLE IF NOT EXISTS") {
			tables = append(tables, c.sql)
		}
	}
	require.Len(t, tables, 3)
	assert.Contains(t, tables[0], "analysis_jobs")
	assert.Contains(t, tables[1], "agent_results")
	assert.Contains(t, tables[2], "release_decisions")

	pool = &poolStub{execErr: assert.AnError}
	err := postgres.EnsureSchema(context.Background(), pool)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=postgres.EnsureSchema")
}
