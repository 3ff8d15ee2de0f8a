package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(_ context.Context) error { return f.err }

type fakePingResult struct{ err error }

func (f fakePingResult) Err() error { return f.err }

type fakeRedis struct{ err error }

func (f fakeRedis) Ping(_ context.Context) RedisPingResult { return fakePingResult{err: f.err} }

func TestBuildReadinessChecks_AllHealthy(t *testing.T) {
	t.Parallel()
	db, rd := BuildReadinessChecks(fakePinger{}, fakeRedis{})

	require.NoError(t, db(context.Background()))
	require.NoError(t, rd(context.Background()))
}

func TestBuildReadinessChecks_PropagatesErrors(t *testing.T) {
	t.Parallel()
	dbErr := errors.New("pool exhausted")
	rdErr := errors.New("connection refused")
	db, rd := BuildReadinessChecks(fakePinger{err: dbErr}, fakeRedis{err: rdErr})

	assert.ErrorIs(t, db(context.Background()), dbErr)
	assert.ErrorIs(t, rd(context.Background()), rdErr)
}

func TestBuildReadinessChecks_NilDependenciesFail(t *testing.T) {
	t.Parallel()
	db, rd := BuildReadinessChecks(nil, nil)

	assert.Error(t, db(context.Background()))
	assert.Error(t, rd(context.Background()))
}
