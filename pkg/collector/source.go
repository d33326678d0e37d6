package collector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/status-agent/pkg/metric"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrUnsupportedScheme = errors.New("unsupported source scheme")
	ErrDuplicateInstance = errors.New("duplicate instance name")
)

// DefaultSourceTimeout 管理接口读取的默认超时
const DefaultSourceTimeout = 5 * time.Second

// Opener 按 scheme 打开数据源，返回一份完整的状态报告
type Opener func(ctx context.Context, target string, timeout time.Duration) (io.ReadCloser, error)

var (
	openersMu sync.RWMutex
	openers   = map[string]Opener{
		"file": openFile,
		"tcp":  openManagement,
	}
)

// RegisterOpener 注册新的数据源 scheme，重复注册覆盖旧值
func RegisterOpener(scheme string, fn Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[strings.ToLower(scheme)] = fn
}

func lookupOpener(scheme string) (Opener, bool) {
	openersMu.RLock()
	defer openersMu.RUnlock()
	fn, ok := openers[scheme]
	return fn, ok
}

// Instance 一个被监控的 OpenVPN 实例
type Instance struct {
	// Name 指标前缀（已清洗）
	Name string
	// Locator 原始配置值
	Locator string

	scheme string
	target string
}

// ParseInstance 解析单个数据源定位符。
//
//	/var/run/openvpn/server.status          -> file, 名称 server
//	file:///var/run/openvpn/office.log      -> file, 名称 office
//	tcp://127.0.0.1:7505#office             -> 管理接口, 名称 office
//
// URI 片段（#name）优先作为实例名。
func ParseInstance(locator string) (Instance, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return Instance{}, errors.New("empty instance locator")
	}

	if !strings.Contains(locator, "://") {
		path, name := locator, ""
		if i := strings.LastIndexByte(locator, '#'); i > 0 {
			path, name = locator[:i], locator[i+1:]
		}
		if name == "" {
			name = stem(path)
		}
		return Instance{
			Name:    metric.Sanitize(name),
			Locator: locator,
			scheme:  "file",
			target:  path,
		}, nil
	}

	u, err := url.Parse(locator)
	if err != nil {
		return Instance{}, fmt.Errorf("parse instance %q: %w", locator, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if _, ok := lookupOpener(scheme); !ok {
		return Instance{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	inst := Instance{Locator: locator, scheme: scheme}
	switch scheme {
	case "file":
		// file://./rel/path 解析后 Host 为 "."
		if u.Host == "" || u.Host == "localhost" {
			inst.target = filepath.FromSlash(u.Path)
		} else {
			inst.target = filepath.FromSlash(u.Host + u.Path)
		}
		if inst.target == "" {
			return Instance{}, fmt.Errorf("instance %q: empty path", locator)
		}
		inst.Name = stem(inst.target)
	case "tcp":
		if _, _, err := net.SplitHostPort(u.Host); err != nil {
			return Instance{}, fmt.Errorf("instance %q: %w", locator, err)
		}
		inst.target = u.Host
		inst.Name = u.Host
	default:
		inst.target = u.Host + u.Path
		inst.Name = stem(u.Path)
		if inst.Name == "" || inst.Name == "." {
			inst.Name = u.Host
		}
	}
	if u.Fragment != "" {
		inst.Name = u.Fragment
	}
	inst.Name = metric.Sanitize(inst.Name)
	return inst, nil
}

// ResolveInstances 解析全部定位符，实例名冲突视为配置错误
func ResolveInstances(locators []string) ([]Instance, error) {
	out := make([]Instance, 0, len(locators))
	seen := make(map[string]string, len(locators))
	for _, l := range locators {
		inst, err := ParseInstance(l)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[inst.Name]; ok {
			return nil, fmt.Errorf("%w %q: %q and %q (use #name to disambiguate)",
				ErrDuplicateInstance, inst.Name, prev, l)
		}
		seen[inst.Name] = l
		out = append(out, inst)
	}
	return out, nil
}

// Open 读取一份状态报告。失败统一包装为 ErrSourceUnavailable
func (i Instance) Open(ctx context.Context, timeout time.Duration) (io.ReadCloser, error) {
	fn, ok := lookupOpener(i.scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, i.Locator, ErrUnsupportedScheme)
	}
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	rc, err := fn(ctx, i.target, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, i.Locator, err)
	}
	return rc, nil
}

func stem(p string) string {
	base := filepath.Base(p)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func openFile(ctx context.Context, path string, _ time.Duration) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(path)
}

// openManagement 通过管理接口读取状态：发送 "status"，读到 END 为止
func openManagement(ctx context.Context, addr string, timeout time.Duration) (io.ReadCloser, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := io.WriteString(conn, "status\n"); err != nil {
		return nil, fmt.Errorf("send status: %w", err)
	}

	var buf bytes.Buffer
	sawEnd := false
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.TrimSpace(line) == headerEnd {
			sawEnd = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if !sawEnd {
		return nil, errors.New("management interface closed before END")
	}
	_, _ = io.WriteString(conn, "quit\n")

	return io.NopCloser(&buf), nil
}
