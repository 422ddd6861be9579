package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveInvocation(t *testing.T) {
	m := New()
	m.ObserveInvocation("mistral", OutcomeOK, 200*time.Millisecond, 120, 30)
	m.ObserveInvocation("mistral", OutcomeOK, 300*time.Millisecond, 80, 20)
	m.ObserveInvocation("fallback-rule-based", OutcomeParseFailure, 50*time.Millisecond, 10, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.invocations.WithLabelValues("mistral", OutcomeOK)))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.tokens.WithLabelValues("mistral", "in")))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.tokens.WithLabelValues("mistral", "out")))

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap["riskpilot_invocations_total{model=fallback-rule-based,outcome=parse_failure}"])
	assert.Equal(t, 2.0, snap["riskpilot_invocation_latency_seconds{model=mistral}_count"])
}

func TestCounters(t *testing.T) {
	m := New()
	m.Fallback("no_credential")
	m.Fallback("no_credential")
	m.Rejected("labelled-fields", 3)
	m.Rejected("strict-json", 0)
	m.Signal("delivery_risk", "HIGH")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("no_credential")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rejections.WithLabelValues("labelled-fields")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signals.WithLabelValues("delivery_risk", "HIGH")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.rejections), "zero rejections create no series")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveInvocation("x", OutcomeOK, time.Second, 1, 1)
		m.Fallback("x")
		m.Rejected("x", 1)
		m.Signal("x", "y")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Signal("cost_risk", "ANOMALOUS")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `riskpilot_signals_total{signal_type="cost_risk",value="ANOMALOUS"} 1`), string(body))
}
