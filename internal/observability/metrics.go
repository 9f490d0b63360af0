package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	parseFailuresTotal  prometheus.Counter
	forcedFinishesTotal prometheus.Counter

	researchIterations prometheus.Histogram
	planSteps          prometheus.Histogram

	sessionSaveDuration prometheus.Histogram
	sessionLoadDuration prometheus.Histogram
	activeSessions      prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			queriesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "queries_total",
					Help: "Total top-level queries by route and status.",
				},
				[]string{"route", "status"},
			),
			queryDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "query_duration_seconds",
					Help:    "Top-level query duration in seconds by route.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),
			generationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "generation_calls_total",
					Help: "Total generation calls by provider, mode and status.",
				},
				[]string{"provider", "mode", "status"},
			),
			generationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "generation_duration_seconds",
					Help:    "Generation call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			parseFailuresTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "parse_failures_total",
					Help: "Total interpreter outputs that failed to parse.",
				},
			),
			forcedFinishesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "forced_finishes_total",
					Help: "Total interpreter runs terminated by the iteration bound.",
				},
			),
			researchIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "research_iterations",
					Help:    "Executed research steps per research query.",
					Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
				},
			),
			planSteps: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "research_plan_steps",
					Help:    "Planned steps per research query.",
					Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session append duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Number of persisted session files.",
				},
			),
		}

		prometheus.MustRegister(
			m.queriesTotal,
			m.queryDuration,
			m.generationTotal,
			m.generationDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.parseFailuresTotal,
			m.forcedFinishesTotal,
			m.researchIterations,
			m.planSteps,
			m.sessionSaveDuration,
			m.sessionLoadDuration,
			m.activeSessions,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the HTTP handler serving the metrics endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// RecordQuery records one completed top-level query.
func RecordQuery(route string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.queriesTotal.WithLabelValues(route, status).Inc()
	m.queryDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordGeneration records one generation call. Mode is "text" or "structured".
func RecordGeneration(provider, mode string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.generationTotal.WithLabelValues(provider, mode, status).Inc()
	m.generationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordToolExecution records one tool invocation.
func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordParseFailure counts an interpreter output that failed to parse.
func RecordParseFailure() {
	getMetrics().parseFailuresTotal.Inc()
}

// RecordForcedFinish counts an interpreter run stopped by the iteration bound.
func RecordForcedFinish() {
	getMetrics().forcedFinishesTotal.Inc()
}

// ObserveResearch records plan size and executed steps for a research query.
func ObserveResearch(planned, executed int) {
	m := getMetrics()
	m.planSteps.Observe(float64(planned))
	m.researchIterations.Observe(float64(executed))
}

// RecordSessionSave records the duration of one session append.
func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

// RecordSessionLoad records the duration of one session load.
func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

// SetActiveSessions sets the persisted session file count.
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}
