package postgres_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error {
	if r.scan == nil {
		return errors.New("no row configured")
	}
	return r.scan(dest...)
}

// rowsStub implements pgx.Rows over a fixed list of scan functions.
type rowsStub struct {
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                   { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *rowsStub) Next() bool                                   { return r.idx < len(r.scans) }
func (r *rowsStub) Scan(dest ...any) error {
	f := r.scans[r.idx]
	r.idx++
	return f(dest...)
}
func (r *rowsStub) Values() ([]any, error) { return nil, nil }
func (r *rowsStub) RawValues() [][]byte    { return nil }
func (r *rowsStub) Conn() *pgx.Conn        { return nil }

type call struct {
	sql  string
	args []any
}

// poolStub implements postgres.PgxPool for tests.
// Defined in a shared helper so multiple *_test.go files can reuse it.
type poolStub struct {
	execErr  error
	execTag  pgconn.CommandTag
	queryErr error
	row      rowStub
	rows     *rowsStub

	execCalls  []call
	queryCalls []call
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execCalls = append(p.execCalls, call{sql: sql, args: args})
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.queryCalls = append(p.queryCalls, call{sql: sql, args: args})
	return p.row
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.queryCalls = append(p.queryCalls, call{sql: sql, args: args})
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		return &rowsStub{}, nil
	}
	return p.rows, nil
}

// scanJob writes j into the destinations of a job row scan.
func scanJob(j domain.Job) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = j.ID
		*(dest[1].(*string)) = j.RepoName
		*(dest[2].(*string)) = j.CommitHash
		*(dest[3].(*string)) = j.CommitMessage
		*(dest[4].(*string)) = j.Branch
		*(dest[5].(*string)) = j.Author
		*(dest[6].(*domain.JobStatus)) = j.Status
		*(dest[7].(*time.Time)) = j.CreatedAt
		*(dest[8].(**time.Time)) = j.CompletedAt
		return nil
	}
}

// scanResult writes res into the destinations of a result row scan.
func scanResult(res domain.AgentResult) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = res.JobID
		*(dest[1].(*string)) = res.AgentName
		*(dest[2].(*domain.Verdict)) = res.Verdict
		*(dest[3].(*float64)) = res.Confidence
		*(dest[4].(*map[string]any)) = res.Payload
		*(dest[5].(*time.Time)) = res.CreatedAt
		return nil
	}
}
