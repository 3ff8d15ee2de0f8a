// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the REST API of the release gate: submitting a commit for
// analysis, polling job status, listing jobs and the administrative fail
// path. HTTP concerns stay here; business rules live in usecase.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-release-gate/internal/config"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
	"github.com/fairyhunter13/ai-release-gate/internal/usecase"
)

// maxAnalyzeBody caps the analyze request body. Diffs above this size say
// more about the commit than any analyzer could.
const maxAnalyzeBody = 10 << 20

// Server aggregates handler dependencies for the gateway API.
type Server struct {
	Cfg        config.Config
	Analyze    usecase.AnalyzeService
	Results    usecase.ResultService
	Admin      usecase.AdminService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, analyze usecase.AnalyzeService, results usecase.ResultService, admin usecase.AdminService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Analyze: analyze, Results: results, Admin: admin, DBCheck: dbCheck, RedisCheck: redisCheck}
}

type analyzeResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type jobStatusResponse struct {
	JobID        string                    `json:"job_id"`
	Status       string                    `json:"status"`
	Decision     string                    `json:"decision,omitempty"`
	Explanation  string                    `json:"explanation,omitempty"`
	AgentResults []domain.AgentResultEvent `json:"agent_results"`
	CreatedAt    time.Time                 `json:"created_at"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
}

type jobSummary struct {
	JobID      string    `json:"job_id"`
	RepoName   string    `json:"repo_name"`
	CommitHash string    `json:"commit_hash"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// notAcceptable rejects requests whose Accept header excludes JSON, the only
// representation this API produces.
func notAcceptable(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return false
	}
	writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
	return true
}

// AnalyzeHandler accepts a commit for analysis and enqueues the pipeline.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxAnalyzeBody)
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_bytes": tooBig.Limit}}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		req.sanitize()
		if !diffIsText(req.Diff) {
			writeError(w, r, fmt.Errorf("%w: diff must be textual", domain.ErrInvalidArgument), nil)
			return
		}
		ctx := r.Context()
		job, err := s.Analyze.Submit(ctx, usecase.AnalyzeRequest{
			RepoName:      req.RepoName,
			CommitHash:    req.CommitHash,
			CommitMessage: req.CommitMessage,
			Diff:          req.Diff,
			Branch:        req.Branch,
			Author:        req.Author,
		})
		if err != nil {
			if job.ID != "" {
				// Persisted but not announced. The pending row survives, so
				// the caller can retry or an operator can replay it.
				writeJSON(w, http.StatusBadGateway, errorEnvelope{Error: apiError{Code: "BUS_UNAVAILABLE", Message: "analysis request stored but not published", Details: map[string]any{"job_id": job.ID}}})
				return
			}
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, analyzeResponse{JobID: job.ID, Status: string(job.Status), CreatedAt: job.CreatedAt})
	}
}

// JobHandler returns one job with its per-agent results and decision.
func (s *Server) JobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		details, err := s.Results.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		resp := jobStatusResponse{
			JobID:        details.Job.ID,
			Status:       string(details.Job.Status),
			AgentResults: make([]domain.AgentResultEvent, 0, len(details.Results)),
			CreatedAt:    details.Job.CreatedAt,
			CompletedAt:  details.Job.CompletedAt,
		}
		for _, res := range details.Results {
			resp.AgentResults = append(resp.AgentResults, domain.AgentResultEvent{
				JobID:      res.JobID,
				AgentName:  res.AgentName,
				Verdict:    res.Verdict,
				Confidence: res.Confidence,
				Payload:    res.Payload,
				Timestamp:  res.CreatedAt,
			})
		}
		if details.Decision != nil {
			resp.Decision = string(details.Decision.Decision)
			resp.Explanation = details.Decision.Explanation
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ListJobsHandler returns newest-first job summaries, optionally filtered by
// repository.
func (s *Server) ListJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if notAcceptable(w, r) {
			return
		}
		repoName := r.URL.Query().Get("repo_name")
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidArgument), map[string]string{"limit": raw})
				return
			}
			limit = n
		}
		jobs, err := s.Results.List(r.Context(), repoName, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]jobSummary, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, jobSummary{JobID: j.ID, RepoName: j.RepoName, CommitHash: j.CommitHash, Status: string(j.Status), CreatedAt: j.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
	}
}

// AdminFailHandler force-fails a stuck job. Mounted behind AdminAuth.
func (s *Server) AdminFailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Admin.Fail(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": string(domain.JobFailed)})
	}
}

// HealthHandler reports liveness. Every binary mounts one under its own
// service name.
func HealthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": service})
	}
}

// ReadyzHandler probes the gateway's hard dependencies.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
