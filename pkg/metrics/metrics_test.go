package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	am := NewMetricFactory(NewPromRegistry(reg)).NewAgentMetrics()

	am.CollectErrors.WithLabelValues("openvpn").Inc()
	am.ParseWarnings.WithLabelValues("openvpn").Add(2)
	am.HandlerProcessed.WithLabelValues("archive").Inc()
	am.CollectDuration.WithLabelValues("openvpn").Observe(0.01)
	am.Published.WithLabelValues("openvpn").Add(11)
	am.HandlerFailures.WithLabelValues("archive").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(am.ParseWarnings.WithLabelValues("openvpn")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"agent_collect_errors_total",
		"agent_collect_duration_seconds",
		"agent_parse_warnings_total",
		"agent_metrics_published_total",
		"agent_handler_processed_total",
		"agent_handler_write_failures_total",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestNewAgentMetrics_DuplicatePanics(t *testing.T) {
	f := NewMetricFactory(NewPromRegistry(prometheus.NewRegistry()))
	f.NewAgentMetrics()
	assert.Panics(t, func() { f.NewAgentMetrics() })
}

func TestDiscard_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard()
		Discard()
	})
}

func TestNewRegistry_Process(t *testing.T) {
	reg := NewRegistry(true)
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
