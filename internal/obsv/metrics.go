package obsv

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the application's Prometheus collectors, kept separate
// from the global default registry so tests can construct isolated ones.
var Registry = prometheus.NewRegistry()

var (
	budgetExceededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arla_engine",
		Subsystem: "evaluator",
		Name:      "budget_exceeded_total",
		Help:      "Number of times the Question Evaluator's latency budget was exceeded before all levels were evaluated.",
	})

	ruleEvaluationFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arla_engine",
		Subsystem: "rules",
		Name:      "evaluation_failure_total",
		Help:      "Number of decision-table row evaluations that raised a CEL runtime error and were treated as non-matching.",
	}, []string{"rule_id"})

	queuePublishFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arla_engine",
		Subsystem: "writeback",
		Name:      "queue_publish_failure_total",
		Help:      "Number of durable write-back enqueue attempts that failed.",
	})

	evaluatorDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arla_engine",
		Subsystem: "evaluator",
		Name:      "evaluate_duration_seconds",
		Help:      "Wall-clock duration of a full Question Evaluator pass.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arla_engine",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests handled, labeled by route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arla_engine",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests, labeled by route.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(
		budgetExceededTotal,
		ruleEvaluationFailureTotal,
		queuePublishFailureTotal,
		evaluatorDuration,
		httpRequestsTotal,
		httpRequestDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// BudgetExceeded increments the evaluator budget-exceeded counter. Matches
// the evaluator.BudgetExceededCounter function type.
func BudgetExceeded() {
	budgetExceededTotal.Inc()
}

// RuleEvaluationFailure records a rule row that raised a CEL runtime error.
func RuleEvaluationFailure(ruleID string) {
	if ruleID == "" {
		ruleID = "unknown"
	}
	ruleEvaluationFailureTotal.WithLabelValues(ruleID).Inc()
}

// QueuePublishFailure increments the write-back publish-failure counter.
// Matches the answer handler's onPublishFailure callback shape.
func QueuePublishFailure() {
	queuePublishFailureTotal.Inc()
}

// ObserveEvaluateDuration records how long one Evaluate pass took.
func ObserveEvaluateDuration(d time.Duration) {
	evaluatorDuration.Observe(d.Seconds())
}

// ObserveHTTPRequest records an HTTP request's outcome and latency.
func ObserveHTTPRequest(method, route, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
