// Package app wires routers, readiness checks and background loops for the
// service binaries.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/ai-release-gate/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildGatewayRouter constructs the gateway HTTP handler with all
// middlewares and routes.
func BuildGatewayRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(chimw.RealIP)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Signed pipeline ingress, rate limited per caller.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		wr.Use(httpserver.SignatureMiddleware(cfg.HMACSecretKey))
		wr.Post("/api/v1/analyze", srv.AnalyzeHandler())
	})

	// Read-only job queries for dashboards and polling CI clients.
	r.Get("/api/v1/jobs/{id}", srv.JobHandler())
	r.Get("/api/v1/jobs", srv.ListJobsHandler())

	// Administrative fail path. AdminAuth answers 404 when no credentials
	// are configured, so the route is invisible unless enabled.
	r.Group(func(ar chi.Router) {
		ar.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		ar.Use(httpserver.AdminAuth(cfg))
		ar.Post("/api/v1/admin/jobs/{id}/fail", srv.AdminFailHandler())
	})

	r.Get("/health", httpserver.HealthHandler("gateway"))
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) { promhttp.Handler().ServeHTTP(w, req) })

	return httpserver.SecurityHeaders(r)
}

// BuildOpsRouter serves health, readiness and metrics for the headless
// binaries (orchestrator, arbiter, analyzers).
func BuildOpsRouter(service string, dbCheck, redisCheck func(ctx context.Context) error) http.Handler {
	probe := &httpserver.Server{DBCheck: dbCheck, RedisCheck: redisCheck}
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Get("/health", httpserver.HealthHandler(service))
	r.Get("/readyz", probe.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) { promhttp.Handler().ServeHTTP(w, req) })
	return r
}
