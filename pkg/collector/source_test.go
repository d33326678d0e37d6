package collector

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstance(t *testing.T) {
	tests := []struct {
		locator string
		name    string
		scheme  string
		target  string
	}{
		{"/var/run/openvpn/status.log", "status", "file", "/var/run/openvpn/status.log"},
		{"file:///var/run/openvpn/office.status", "office", "file", "/var/run/openvpn/office.status"},
		{"file://./testdata/status.log", "status", "file", filepath.FromSlash("./testdata/status.log")},
		{"file:///tmp/a.log#Branch-1", "branch-1", "file", "/tmp/a.log"},
		{"tcp://127.0.0.1:7505", "127_0_0_1_7505", "tcp", "127.0.0.1:7505"},
		{"tcp://vpn.local:7505#hq", "hq", "tcp", "vpn.local:7505"},
		{"server", "server", "file", "server"},
	}
	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			inst, err := ParseInstance(tt.locator)
			require.NoError(t, err)
			assert.Equal(t, tt.name, inst.Name)
			assert.Equal(t, tt.scheme, inst.scheme)
			assert.Equal(t, tt.target, inst.target)
			assert.Equal(t, tt.locator, inst.Locator)
		})
	}
}

func TestParseInstance_Errors(t *testing.T) {
	_, err := ParseInstance("http://example.org/status")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	_, err = ParseInstance("tcp://127.0.0.1")
	assert.Error(t, err)

	_, err = ParseInstance("   ")
	assert.Error(t, err)
}

func TestResolveInstances_Duplicate(t *testing.T) {
	_, err := ResolveInstances([]string{"/a/status.log", "/b/status.log"})
	assert.ErrorIs(t, err, ErrDuplicateInstance)

	insts, err := ResolveInstances([]string{"/a/status.log", "/b/status.log#b"})
	require.NoError(t, err)
	assert.Equal(t, "status", insts[0].Name)
	assert.Equal(t, "b", insts[1].Name)
}

func TestRegisterOpener(t *testing.T) {
	RegisterOpener("mem", func(_ context.Context, target string, _ time.Duration) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("OpenVPN CLIENT LIST\n" + target + ",x:1,1,2,now\nEND\n")), nil
	})
	t.Cleanup(func() {
		openersMu.Lock()
		delete(openers, "mem")
		openersMu.Unlock()
	})

	inst, err := ParseInstance("mem://host/office")
	require.NoError(t, err)
	assert.Equal(t, "office", inst.Name)

	rc, err := inst.Open(context.Background(), 0)
	require.NoError(t, err)
	defer rc.Close()
	ms, _, err := ParseStatus(inst.Name, rc, fixtureTime)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "office.clients.host_office.bytes_rx", ms[0].Path())
}

func TestInstanceOpen_MissingFile(t *testing.T) {
	inst, err := ParseInstance(filepath.Join(t.TempDir(), "missing.log"))
	require.NoError(t, err)
	_, err = inst.Open(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// fakeManagement 模拟管理接口：收到 status 后返回 report
func fakeManagement(t *testing.T, report string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.WriteString(c, ">INFO:OpenVPN Management Interface Version 1 -- type 'help' for more info\r\n")
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					switch strings.TrimSpace(line) {
					case "status":
						_, _ = io.WriteString(c, report)
					case "quit":
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestInstanceOpen_Management(t *testing.T) {
	data, err := os.ReadFile("testdata/status.log")
	require.NoError(t, err)
	addr := fakeManagement(t, strings.ReplaceAll(string(data), "\n", "\r\n"))

	inst, err := ParseInstance("tcp://" + addr + "#status")
	require.NoError(t, err)

	rc, err := inst.Open(context.Background(), 2*time.Second)
	require.NoError(t, err)
	defer rc.Close()

	ms, warnings, err := ParseStatus(inst.Name, rc, fixtureTime)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Len(t, ms, len(fixtureExpected))
}

func TestInstanceOpen_ManagementTimeout(t *testing.T) {
	// 永不输出 END
	addr := fakeManagement(t, "OpenVPN CLIENT LIST\r\n")
	inst, err := ParseInstance("tcp://" + addr)
	require.NoError(t, err)

	start := time.Now()
	_, err = inst.Open(context.Background(), 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInstanceOpen_ManagementRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	inst, err := ParseInstance("tcp://" + addr)
	require.NoError(t, err)
	_, err = inst.Open(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
