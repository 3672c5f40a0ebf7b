// Package metrics exposes Prometheus counters for sampling and disposition.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qualityline"

// Metrics groups the collectors the engine and server update.
type Metrics struct {
	registry *prometheus.Registry

	PlansResolved        *prometheus.CounterVec
	InspectionsEvaluated *prometheus.CounterVec
	DefectsFound         *prometheus.CounterVec
	OrphanedAnswers      prometheus.Counter
	ApprovalTransitions  *prometheus.CounterVec
	WebhookDeliveries    *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PlansResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_resolved_total",
			Help:      "Sampling plan resolutions by level and result.",
		}, []string{"level", "result"}),
		InspectionsEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inspections_evaluated_total",
			Help:      "Inspection evaluations by verdict.",
		}, []string{"verdict"}),
		DefectsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defects_found_total",
			Help:      "Classified defects by severity.",
		}, []string{"severity"}),
		OrphanedAnswers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_answers_total",
			Help:      "Answers dropped because their question is not in the plan.",
		}),
		ApprovalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_transitions_total",
			Help:      "Conditional approval transitions by resulting status.",
		}, []string{"status"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.PlansResolved,
		m.InspectionsEvaluated,
		m.DefectsFound,
		m.OrphanedAnswers,
		m.ApprovalTransitions,
		m.WebhookDeliveries,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePlan counts a plan resolution. Safe on a nil receiver.
func (m *Metrics) ObservePlan(level, result string) {
	if m == nil {
		return
	}
	m.PlansResolved.WithLabelValues(level, result).Inc()
}

// ObserveEvaluation counts an evaluated inspection and its defects.
func (m *Metrics) ObserveEvaluation(verdict string, critical, major, minor, orphaned int) {
	if m == nil {
		return
	}
	m.InspectionsEvaluated.WithLabelValues(verdict).Inc()
	m.DefectsFound.WithLabelValues("CRITICAL").Add(float64(critical))
	m.DefectsFound.WithLabelValues("MAJOR").Add(float64(major))
	m.DefectsFound.WithLabelValues("MINOR").Add(float64(minor))
	m.OrphanedAnswers.Add(float64(orphaned))
}

// ObserveApproval counts a conditional approval transition.
func (m *Metrics) ObserveApproval(status string) {
	if m == nil {
		return
	}
	m.ApprovalTransitions.WithLabelValues(status).Inc()
}

// ObserveWebhook counts a webhook delivery attempt.
func (m *Metrics) ObserveWebhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}
