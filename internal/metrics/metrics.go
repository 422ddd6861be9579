// Package metrics holds the Prometheus instruments of the analysis pipeline.
// All instruments live on a private registry; a nil *Metrics is a no-op.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riskpilot"

// Invocation outcomes
const (
	OutcomeOK           = "ok"
	OutcomeParseFailure = "parse_failure"
	OutcomeError        = "error"
)

// Metrics groups the pipeline's counters and histograms
type Metrics struct {
	registry *prometheus.Registry

	invocations *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	tokens      *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	signals     *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers every instrument on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Model invocations by model and outcome.",
		}, []string{"model", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Invocations answered by the rule-based generator, by reason.",
		}, []string{"reason"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_rejections_total",
			Help:      "Signal drafts rejected by the reply parser.",
		}, []string{"strategy"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signals persisted by type and value.",
		}, []string{"signal_type", "value"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_latency_seconds",
			Help:      "Model invocation latency including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model"}),
	}
	m.registry.MustRegister(m.invocations, m.fallbacks, m.tokens, m.rejections, m.signals, m.latency)
	return m
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveInvocation records one model call
func (m *Metrics) ObserveInvocation(model, outcome string, latency time.Duration, tokensIn, tokensOut int) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(model, outcome).Inc()
	m.latency.WithLabelValues(model).Observe(latency.Seconds())
	m.tokens.WithLabelValues(model, "in").Add(float64(tokensIn))
	m.tokens.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// Fallback records a rule-based reply. reason is a short class such as
// "no_credential", "transient" or "permanent".
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

// Rejected records drafts dropped by the parser
func (m *Metrics) Rejected(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rejections.WithLabelValues(strategy).Add(float64(n))
}

// Signal records a persisted signal
func (m *Metrics) Signal(signalType, value string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(signalType, value).Inc()
}

// Snapshot flattens counters and histogram counts into "name{k=v,...}" keys
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				out[key+"_count"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
