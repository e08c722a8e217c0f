package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks service-level counters on a private registry. A nil
// *Metrics is a valid no-op, so tests and metric-less deployments skip the
// registry entirely.
type Metrics struct {
	registry  *prometheus.Registry
	analyses  *prometheus.CounterVec
	questions *prometheus.CounterVec
}

// New builds the registry. sessionCount, when non-nil, backs a live gauge
// read at scrape time.
func New(sessionCount func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lucid_analyses_total",
			Help: "Classifier outputs processed, by outcome.",
		}, []string{"outcome"}),
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lucid_questions_total",
			Help: "Questions answered, by routed intent and grounding.",
		}, []string{"intent", "grounded"}),
	}
	reg.MustRegister(m.analyses, m.questions)

	if sessionCount != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lucid_sessions",
			Help: "Sessions currently live.",
		}, func() float64 { return float64(sessionCount()) }))
	}

	return m
}

// ObserveAnalysis counts one processed classifier output. outcome is
// "accepted" or "rejected".
func (m *Metrics) ObserveAnalysis(outcome string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
}

// ObserveQuestion counts one answered question.
func (m *Metrics) ObserveQuestion(intent string, grounded bool) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(intent, strconv.FormatBool(grounded)).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
