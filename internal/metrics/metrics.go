// Package metrics exposes Prometheus instrumentation for the gateway client,
// the payment pipeline and settlements.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cooper"

// Metrics holds the application's collectors. A nil *Metrics records nothing.
type Metrics struct {
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	pipelineJobs    *prometheus.CounterVec
	refunds         *prometheus.CounterVec
	settlements     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Payment gateway calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Payment gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		pipelineJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Payment pipeline jobs by final state.",
		}, []string{"state"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "refunds_total",
			Help:      "Refunds written to the ledger by proof verification.",
		}, []string{"verified"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "executions_total",
			Help:      "Settlement executions by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(m.gatewayRequests, m.gatewayLatency, m.pipelineJobs, m.refunds, m.settlements)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveGatewayCall records one gateway call.
func (m *Metrics) ObserveGatewayCall(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(op, outcome).Inc()
	m.gatewayLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// JobFinished records a pipeline job reaching a terminal state.
func (m *Metrics) JobFinished(state string) {
	if m == nil {
		return
	}
	m.pipelineJobs.WithLabelValues(state).Inc()
}

// RefundIssued records a refund transaction.
func (m *Metrics) RefundIssued(verified bool) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(strconv.FormatBool(verified)).Inc()
}

// SettlementExecuted records a settlement of the given type.
func (m *Metrics) SettlementExecuted(kind string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind).Inc()
}
