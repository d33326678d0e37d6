package metric

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNew_Valid(t *testing.T) {
	segs := []string{"status", "clients", "a_example_org", "bytes_rx"}
	m, err := New(segs, 109619579, ts)
	require.NoError(t, err)

	assert.Equal(t, "status.clients.a_example_org.bytes_rx", m.Path())
	assert.Equal(t, 109619579.0, m.Value())
	assert.Equal(t, ts, m.Timestamp())
	assert.Equal(t, Gauge, m.Kind())
	assert.Equal(t, "status.clients.a_example_org.bytes_rx 109619579.000000", m.Render())

	// 修改入参切片不影响已创建的指标
	segs[0] = "changed"
	assert.Equal(t, "status", m.Segments()[0])
}

func TestNew_InvalidPath(t *testing.T) {
	cases := map[string][]string{
		"empty path":     nil,
		"empty segment":  {"status", ""},
		"delimiter":      {"status", "a.b"},
		"space":          {"status", "a b"},
		"tab":            {"status", "a\tb"},
		"trailing space": {"status "},
	}
	for name, segs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(segs, 1, ts)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestNew_InvalidValue(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := New([]string{"x"}, v, ts)
		assert.ErrorIs(t, err, ErrInvalidValue, "value %v", v)
	}
}

func TestWithKind(t *testing.T) {
	m, err := New([]string{"x"}, 1, ts)
	require.NoError(t, err)
	c := m.WithKind(Counter)
	assert.Equal(t, Counter, c.Kind())
	assert.Equal(t, Gauge, m.Kind())
	assert.Equal(t, "counter", c.Kind().String())
}

func TestRender_RoundTrip(t *testing.T) {
	values := []float64{0, 14, 109619579, 0.5, 1.123456, -3.25, 1e15}
	for _, v := range values {
		m, err := New([]string{"a", "b"}, v, ts)
		require.NoError(t, err)

		path, got, err := ParseLine(m.Render())
		require.NoError(t, err)
		assert.Equal(t, "a.b", path)
		assert.Equal(t, FormatValue(v), FormatValue(got))
	}
}

func TestParseLine_Invalid(t *testing.T) {
	_, _, err := ParseLine("only-path")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, _, err = ParseLine("a..b 1.000000")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, _, err = ParseLine("a.b abc")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, _, err = ParseLine("a.b NaN")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"a.example.org":     "a_example_org",
		"User@Example.ORG":  "user_example_org",
		"  host-01_x ":      "host-01_x",
		"with space":        "with_space",
		"":                  "_",
		"ünïcode":           "_n_code",
		"already_clean-123": "already_clean-123",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "Sanitize(%q)", in)
	}
}

func TestSanitize_PureAndClean(t *testing.T) {
	inputs := []string{"A.B@C", "x.Y.z", "@@@", "MiXeD.Case@host.example"}
	for _, in := range inputs {
		out := Sanitize(in)
		assert.Equal(t, out, Sanitize(in))
		assert.NotContains(t, out, ".")
		assert.NotContains(t, out, "@")
		assert.Equal(t, out, Sanitize(out), "sanitize must be idempotent")
		for _, r := range out {
			assert.False(t, r >= 'A' && r <= 'Z', "uppercase in %q", out)
		}
		_, err := New([]string{out}, 1, ts)
		assert.NoError(t, err)
	}
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "max_bcast-mcast_queue_length", SanitizeKey("Max bcast/mcast queue length"))
	assert.Equal(t, "a_b", SanitizeKey("  A   B "))
}
