// Package metrics holds the Prometheus collectors shared by the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "omnisupply"

// Registry is the engine's private registry. The default global registry is
// left untouched so embedding programs keep control of it.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	agentExecutions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_executions_total",
		Help:      "Agent invocations by outcome.",
	}, []string{"agent", "status"})

	agentDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_execution_seconds",
		Help:      "Wall-clock time of agent invocations.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"agent"})

	structuredCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "structured_calls_total",
		Help:      "Structured-output model calls by schema and outcome.",
	}, []string{"schema", "outcome"})

	supervisorRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "supervisor_requests_total",
		Help:      "Supervisor requests by outcome.",
	}, []string{"outcome"})

	supervisorDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "supervisor_request_seconds",
		Help:      "End-to-end time of supervisor requests.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})

	riskOverall = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "risk_overall_score",
		Help:      "Most recent overall supply-chain risk score.",
	})

	riskAlerts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "risk_alerts_total",
		Help:      "Generated risk alerts by severity.",
	}, []string{"severity"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Agent status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusTimeout = "timeout"
)

// ObserveAgent records one agent invocation.
func ObserveAgent(agent, status string, d time.Duration) {
	agentExecutions.WithLabelValues(agent, status).Inc()
	agentDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// ObserveStructuredCall records the outcome of one structured-output call.
// Outcome is "ok" or a failure kind.
func ObserveStructuredCall(schema, outcome string) {
	structuredCalls.WithLabelValues(schema, outcome).Inc()
}

// ObserveRequest records one supervisor request. Outcome is "ok" or a failure kind.
func ObserveRequest(outcome string, d time.Duration) {
	supervisorRequests.WithLabelValues(outcome).Inc()
	supervisorDuration.Observe(d.Seconds())
}

// SetRiskScore publishes the latest overall risk score.
func SetRiskScore(score float64) {
	riskOverall.Set(score)
}

// CountAlert records a generated alert.
func CountAlert(severity string) {
	riskAlerts.WithLabelValues(severity).Inc()
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
