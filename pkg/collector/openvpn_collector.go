package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/status-agent/pkg/config"
	"github.com/status-agent/pkg/metric"
	"github.com/status-agent/pkg/metrics"
)

const (
	OpenVPNName = "openvpn"

	MethodSequential = "sequential"
	MethodConcurrent = "concurrent"
)

// OpenVPNCollector 读取一个或多个实例的状态报告并转换为指标。
// 每个周期重新读取、重新解析，不保留跨周期状态。
type OpenVPNCollector struct {
	name      string
	interval  time.Duration
	method    string
	timeout   time.Duration
	instances []Instance

	logger  *zap.Logger
	metrics *metrics.AgentMetrics
	now     func() time.Time
}

// Option 采集器可选项
type Option func(*OpenVPNCollector)

// WithNow 替换时间源（测试用）
func WithNow(now func() time.Time) Option {
	return func(c *OpenVPNCollector) { c.now = now }
}

// NewOpenVPNCollector 创建状态报告采集器，实例定位符在此解析
func NewOpenVPNCollector(cfg config.OpenVPNCollectorConfig, interval time.Duration,
	logger *zap.Logger, am *metrics.AgentMetrics, opts ...Option) (*OpenVPNCollector, error) {
	instances, err := ResolveInstances(cfg.Instances)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, errors.New("openvpn: no instances configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if am == nil {
		am = metrics.Discard()
	}
	method := cfg.Method
	if method == "" {
		method = MethodSequential
	}

	c := &OpenVPNCollector{
		name:      OpenVPNName,
		interval:  interval,
		method:    method,
		timeout:   cfg.Timeout,
		instances: instances,
		logger:    logger.With(zap.String("collector", OpenVPNName)),
		metrics:   am,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *OpenVPNCollector) Name() string { return c.name }

func (c *OpenVPNCollector) Interval() time.Duration { return c.interval }

// Instances 已解析的实例（只读副本）
func (c *OpenVPNCollector) Instances() []Instance {
	return append([]Instance(nil), c.instances...)
}

// Collect 采集全部实例。单个实例不可读不影响其他实例，错误合并返回；
// 结果顺序与配置中的实例顺序一致。
func (c *OpenVPNCollector) Collect(ctx context.Context) ([]metric.Metric, error) {
	ts := c.now()
	results := make([][]metric.Metric, len(c.instances))
	errs := make([]error, len(c.instances))

	if c.method == MethodConcurrent {
		g, gctx := errgroup.WithContext(ctx)
		for i := range c.instances {
			i := i
			g.Go(func() error {
				results[i], errs[i] = c.collectInstance(gctx, c.instances[i], ts)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, inst := range c.instances {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				break
			}
			results[i], errs[i] = c.collectInstance(ctx, inst, ts)
		}
	}

	var out []metric.Metric
	for _, r := range results {
		out = append(out, r...)
	}
	return out, errors.Join(errs...)
}

func (c *OpenVPNCollector) collectInstance(ctx context.Context, inst Instance, ts time.Time) ([]metric.Metric, error) {
	log := c.logger.With(zap.String("instance", inst.Name))

	rc, err := inst.Open(ctx, c.timeout)
	if err != nil {
		log.Warn("status source unavailable", zap.String("locator", inst.Locator), zap.Error(err))
		return nil, err
	}
	defer rc.Close()

	ms, warnings, err := ParseStatus(inst.Name, rc, ts)
	for _, w := range warnings {
		log.Warn("skipped malformed status line",
			zap.Int("line", w.LineNo),
			zap.String("reason", w.Reason),
			zap.String("content", w.Line))
	}
	if len(warnings) > 0 {
		c.metrics.ParseWarnings.WithLabelValues(c.name).Add(float64(len(warnings)))
	}
	if err != nil {
		log.Warn("status read interrupted", zap.Int("parsed", len(ms)), zap.Error(err))
		return ms, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, inst.Locator, err)
	}
	log.Debug("status parsed", zap.Int("metrics", len(ms)))
	return ms, nil
}
