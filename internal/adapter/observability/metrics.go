package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	JobsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_created_total",
			Help: "Total number of analysis jobs accepted by the gateway",
		},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs marked failed",
		},
		[]string{"reason"},
	)

	AgentResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_results_total",
			Help: "Total number of analyzer results by agent and verdict",
		},
		[]string{"agent", "verdict"},
	)
	AgentAnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_analysis_duration_seconds",
			Help:    "Analyzer run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "release_decisions_total",
			Help: "Total number of release decisions by outcome",
		},
		[]string{"decision"},
	)
	DecisionScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "release_decision_score",
			Help:    "Distribution of weighted confidence scores ([0,1])",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
	ArbiterPendingJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "arbiter_pending_jobs",
			Help: "Number of jobs the arbiter is currently collecting verdicts for",
		},
	)

	BusPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_published_total",
			Help: "Total number of messages published to the event bus",
		},
		[]string{"stream"},
	)
	BusConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_consumed_total",
			Help: "Total number of messages acknowledged by consumers",
		},
		[]string{"stream", "group"},
	)
	BusHandlerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_handler_errors_total",
			Help: "Total number of handler failures leaving messages unacknowledged",
		},
		[]string{"stream", "group"},
	)
	BusClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_claimed_total",
			Help: "Total number of pending messages reclaimed from stalled consumers",
		},
		[]string{"stream", "group"},
	)

	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Total number of LLM completion requests by provider and status",
		},
		[]string{"provider", "status"},
	)
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM completion duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	AppInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Static application labels; the value is always 1",
		},
		[]string{"env"},
	)
)

// SetAppEnv records the runtime environment once at startup. It feeds the
// app_info metric so dashboards can separate dev and prod series.
func SetAppEnv(env string) {
	AppInfo.WithLabelValues(strings.ToLower(env)).Set(1)
}

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsCreatedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(AgentResultsTotal)
	prometheus.MustRegister(AgentAnalysisDuration)
	prometheus.MustRegister(DecisionsTotal)
	prometheus.MustRegister(DecisionScoreHistogram)
	prometheus.MustRegister(ArbiterPendingJobs)
	prometheus.MustRegister(BusPublishedTotal)
	prometheus.MustRegister(BusConsumedTotal)
	prometheus.MustRegister(BusHandlerErrorsTotal)
	prometheus.MustRegister(BusClaimedTotal)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(AppInfo)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func CreateJob() {
	JobsCreatedTotal.Inc()
}

func FailJob(reason string) {
	JobsFailedTotal.WithLabelValues(reason).Inc()
}

// RecordAgentResult tracks one analyzer verdict and how long the run took.
func RecordAgentResult(agent, verdict string, dur time.Duration) {
	AgentResultsTotal.WithLabelValues(agent, verdict).Inc()
	AgentAnalysisDuration.WithLabelValues(agent).Observe(dur.Seconds())
}

// RecordDecision tracks one release decision and its weighted score.
func RecordDecision(decision string, score float64) {
	DecisionsTotal.WithLabelValues(decision).Inc()
	if score >= 0 && score <= 1 {
		DecisionScoreHistogram.Observe(score)
	}
}

func RecordLLMRequest(provider, status string, dur time.Duration) {
	LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	LLMRequestDuration.WithLabelValues(provider).Observe(dur.Seconds())
}

func PublishMessage(stream string) {
	BusPublishedTotal.WithLabelValues(stream).Inc()
}

func ConsumeMessage(stream, group string) {
	BusConsumedTotal.WithLabelValues(stream, group).Inc()
}

func HandlerError(stream, group string) {
	BusHandlerErrorsTotal.WithLabelValues(stream, group).Inc()
}

func ClaimMessage(stream, group string) {
	BusClaimedTotal.WithLabelValues(stream, group).Inc()
}

func SetArbiterPending(n int) {
	ArbiterPendingJobs.Set(float64(n))
}
