package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/status-agent/pkg/config"
	"github.com/status-agent/pkg/metrics"
)

func newTestServer(t *testing.T) (*HTTPServer, *metrics.AgentMetrics) {
	t.Helper()
	reg := metrics.NewRegistry(false)
	am := metrics.NewMetricFactory(metrics.NewPromRegistry(reg)).NewAgentMetrics()
	cfg := config.NewDefaultConfig().Server
	cfg.Addr = "127.0.0.1:0"
	return NewHTTPServer(cfg, reg, nil), am
}

func TestHTTPServer_Routes(t *testing.T) {
	s, am := newTestServer(t)
	am.Published.WithLabelValues("openvpn").Add(11)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/health", http.StatusOK, "OK"},
		{"/metrics", http.StatusOK, `agent_metrics_published_total{collector="openvpn"} 11`},
		{"/", http.StatusOK, `href="/metrics"`},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestHTTPServer_StartShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	_, err = http.Get("http://" + s.Addr() + "/health")
	assert.Error(t, err)
}

func TestHTTPServer_ListenError(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	cfg := config.NewDefaultConfig().Server
	cfg.Addr = s.Addr()
	other := NewHTTPServer(cfg, metrics.NewRegistry(false), nil)
	assert.Error(t, other.Start())
}
