package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shirou/gopsutil/v3/cpu"
	cload "github.com/shirou/gopsutil/v3/load"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/status-agent/pkg/config"
	"github.com/status-agent/pkg/metric"
	"github.com/status-agent/pkg/metrics"
)

func fixedNow() time.Time { return fixtureTime }

func renderAll(ms []metric.Metric) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Render())
	}
	return out
}

func TestOpenVPNCollector_Fixture(t *testing.T) {
	c, err := NewOpenVPNCollector(config.OpenVPNCollectorConfig{
		Enable:    true,
		Instances: []string{"file://./testdata/status.log"},
	}, 10*time.Second, zap.NewNop(), nil, WithNow(fixedNow))
	require.NoError(t, err)
	assert.Equal(t, OpenVPNName, c.Name())
	assert.Equal(t, 10*time.Second, c.Interval())

	ms, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, ms, 11)
	for _, m := range ms {
		assert.Equal(t, fixtureExpected[m.Path()], m.Value(), m.Path())
	}

	again, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, renderAll(ms), renderAll(again))
}

func TestOpenVPNCollector_MalformedLineLogged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "office.status")
	require.NoError(t, os.WriteFile(path, []byte(
		"OpenVPN CLIENT LIST\n"+
			"a.example.org,10.0.0.1:1,10,20,now\n"+
			"broken line\n"+
			"GLOBAL STATS\n"+
			"Max bcast/mcast queue length,2\n"+
			"END\n"), 0o644))

	core, logs := observer.New(zapcore.WarnLevel)
	am := metrics.Discard()
	c, err := NewOpenVPNCollector(config.OpenVPNCollectorConfig{Instances: []string{path}},
		time.Second, zap.New(core), am, WithNow(fixedNow))
	require.NoError(t, err)

	ms, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, ms, 3)

	warned := logs.FilterMessage("skipped malformed status line").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "office", warned[0].ContextMap()["instance"])
	assert.EqualValues(t, 3, warned[0].ContextMap()["line"])
	assert.Equal(t, 1.0, testutil.ToFloat64(am.ParseWarnings.WithLabelValues(OpenVPNName)))
}

func TestOpenVPNCollector_MissingSource(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c, err := NewOpenVPNCollector(config.OpenVPNCollectorConfig{
		Instances: []string{filepath.Join(t.TempDir(), "gone.log")},
	}, time.Second, zap.New(core), nil)
	require.NoError(t, err)

	ms, err := c.Collect(context.Background())
	assert.Empty(t, ms)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, 1, logs.FilterMessage("status source unavailable").Len())
}

func TestOpenVPNCollector_MultipleInstances(t *testing.T) {
	for _, method := range []string{MethodSequential, MethodConcurrent} {
		t.Run(method, func(t *testing.T) {
			missing := filepath.Join(t.TempDir(), "down.log")
			c, err := NewOpenVPNCollector(config.OpenVPNCollectorConfig{
				Method: method,
				Instances: []string{
					"file://./testdata/status.log#hq",
					missing,
					"testdata/status.log#branch",
				},
			}, time.Second, zap.NewNop(), nil, WithNow(fixedNow))
			require.NoError(t, err)

			ms, err := c.Collect(context.Background())
			assert.ErrorIs(t, err, ErrSourceUnavailable)
			require.Len(t, ms, 22)
			for _, m := range ms[:11] {
				assert.Equal(t, "hq", m.Segments()[0])
			}
			for _, m := range ms[11:] {
				assert.Equal(t, "branch", m.Segments()[0])
			}
		})
	}
}

func TestNewOpenVPNCollector_Errors(t *testing.T) {
	_, err := NewOpenVPNCollector(config.OpenVPNCollectorConfig{}, time.Second, nil, nil)
	assert.Error(t, err)

	_, err = NewOpenVPNCollector(config.OpenVPNCollectorConfig{
		Instances: []string{"/a/status.log", "/b/status.log"},
	}, time.Second, nil, nil)
	assert.ErrorIs(t, err, ErrDuplicateInstance)

	_, err = NewOpenVPNCollector(config.OpenVPNCollectorConfig{
		Instances: []string{"ftp://host/status"},
	}, time.Second, nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

type fakeCPU struct {
	percent []float64
	times   []cpu.TimesStat
	loadErr error
}

func (f *fakeCPU) Percent(context.Context, bool) ([]float64, error) { return f.percent, nil }

func (f *fakeCPU) Times(context.Context, bool) ([]cpu.TimesStat, error) { return f.times, nil }

func (f *fakeCPU) Counts(_ context.Context, logical bool) (int, error) {
	if logical {
		return 8, nil
	}
	return 4, nil
}

func (f *fakeCPU) Load(context.Context) (*cload.AvgStat, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &cload.AvgStat{Load1: 0.5, Load5: 0.25, Load15: 0.125}, nil
}

func TestCPUCollector_Collect(t *testing.T) {
	src := &fakeCPU{
		percent: []float64{12.5},
		times:   []cpu.TimesStat{{CPU: "cpu-total", User: 100, System: 50, Idle: 850}},
	}
	c := NewCPUCollector(config.CPUCollectorConfig{}, time.Second, nil)
	c.src = src
	c.now = fixedNow

	ms, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"cpu.total.usage_percent 12.500000",
		"cpu.count.logical 8.000000",
		"cpu.count.physical 4.000000",
		"loadavg.01 0.500000",
		"loadavg.05 0.250000",
		"loadavg.15 0.125000",
	}, renderAll(ms))

	// 第二次采样：100 个时间单位中 user 30、system 20、idle 50
	src.times = []cpu.TimesStat{{CPU: "cpu-total", User: 130, System: 70, Idle: 900}}
	ms, err = c.Collect(context.Background())
	require.NoError(t, err)
	got := map[string]float64{}
	for _, m := range ms {
		got[m.Path()] = m.Value()
	}
	assert.InDelta(t, 30.0, got["cpu.total.user_percent"], 1e-9)
	assert.InDelta(t, 20.0, got["cpu.total.system_percent"], 1e-9)
	assert.InDelta(t, 50.0, got["cpu.total.idle_percent"], 1e-9)
	assert.Contains(t, got, "cpu.total.steal_percent")
}

func TestCPUCollector_PerCoreAndPartialFailure(t *testing.T) {
	boom := errors.New("no loadavg")
	c := NewCPUCollector(config.CPUCollectorConfig{PerCore: true}, time.Second, nil)
	c.src = &fakeCPU{percent: []float64{1, 2}, loadErr: boom}

	ms, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
	paths := map[string]bool{}
	for _, m := range ms {
		paths[m.Path()] = true
	}
	assert.True(t, paths["cpu.cpu0.usage_percent"])
	assert.True(t, paths["cpu.cpu1.usage_percent"])
	assert.False(t, paths["loadavg.01"])
}
