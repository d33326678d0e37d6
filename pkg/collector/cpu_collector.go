package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	cload "github.com/shirou/gopsutil/v3/load"
	"go.uber.org/zap"

	"github.com/status-agent/pkg/config"
	"github.com/status-agent/pkg/metric"
)

const CPUName = "cpu"

// cpuModes 各模式输出顺序
var cpuModes = []string{"user", "nice", "system", "idle", "iowait", "irq", "softirq", "steal"}

// cpuSource 隔离 gopsutil，便于单测替换
type cpuSource interface {
	Percent(ctx context.Context, perCPU bool) ([]float64, error)
	Times(ctx context.Context, perCPU bool) ([]cpu.TimesStat, error)
	Counts(ctx context.Context, logical bool) (int, error)
	Load(ctx context.Context) (*cload.AvgStat, error)
}

type gopsutilSource struct{}

func (gopsutilSource) Percent(ctx context.Context, perCPU bool) ([]float64, error) {
	return cpu.PercentWithContext(ctx, 0, perCPU)
}

func (gopsutilSource) Times(ctx context.Context, perCPU bool) ([]cpu.TimesStat, error) {
	return cpu.TimesWithContext(ctx, perCPU)
}

func (gopsutilSource) Counts(ctx context.Context, logical bool) (int, error) {
	return cpu.CountsWithContext(ctx, logical)
}

func (gopsutilSource) Load(ctx context.Context) (*cload.AvgStat, error) {
	return cload.AvgWithContext(ctx)
}

// CPUCollector CPU使用率与系统负载采集器
//
//	cpu.total.usage_percent / cpu.cpu0.usage_percent
//	cpu.total.<mode>_percent   各模式占比（需要两次采样，首个周期不输出）
//	cpu.count.logical / cpu.count.physical
//	loadavg.01 / loadavg.05 / loadavg.15
type CPUCollector struct {
	name     string
	interval time.Duration
	perCore  bool
	src      cpuSource
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastTimes map[string]cpu.TimesStat // 上一次的CPU时间，用于计算各模式占比
}

// NewCPUCollector 创建CPU采集器
func NewCPUCollector(cfg config.CPUCollectorConfig, interval time.Duration,
	logger *zap.Logger) *CPUCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CPUCollector{
		name:      CPUName,
		interval:  interval,
		perCore:   cfg.PerCore,
		src:       gopsutilSource{},
		logger:    logger.With(zap.String("collector", CPUName)),
		now:       time.Now,
		lastTimes: make(map[string]cpu.TimesStat),
	}
}

func (c *CPUCollector) Name() string { return c.name }

func (c *CPUCollector) Interval() time.Duration { return c.interval }

// Collect 执行一次采集。某一项失败时返回其余项和合并后的错误
func (c *CPUCollector) Collect(ctx context.Context) ([]metric.Metric, error) {
	ts := c.now()
	var (
		out  []metric.Metric
		errs []error
	)
	add := func(value float64, segments ...string) {
		m, err := metric.New(segments, value, ts)
		if err != nil {
			errs = append(errs, err)
			return
		}
		out = append(out, m)
	}

	// 1. 使用率 整体/每核
	usage, err := c.src.Percent(ctx, c.perCore)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("cpu percent: %w", err))
	case c.perCore:
		for i, u := range usage {
			add(u, "cpu", fmt.Sprintf("cpu%d", i), "usage_percent")
		}
	case len(usage) > 0:
		add(usage[0], "cpu", "total", "usage_percent")
	}

	// 2. 各模式占比
	times, err := c.src.Times(ctx, false)
	if err != nil {
		errs = append(errs, fmt.Errorf("cpu times: %w", err))
	} else {
		for _, t := range times {
			id := t.CPU
			if id == "cpu-total" || id == "" {
				id = "total"
			}
			pct := c.modePercent(id, t)
			if pct == nil {
				continue
			}
			for _, mode := range cpuModes {
				add(pct[mode], "cpu", metric.Sanitize(id), mode+"_percent")
			}
		}
	}

	// 3. 核心数
	if n, err := c.src.Counts(ctx, true); err == nil {
		add(float64(n), "cpu", "count", "logical")
	} else {
		errs = append(errs, fmt.Errorf("cpu counts: %w", err))
	}
	if n, err := c.src.Counts(ctx, false); err == nil && n > 0 {
		add(float64(n), "cpu", "count", "physical")
	}

	// 4. 负载
	load, err := c.src.Load(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("load average: %w", err))
	} else {
		add(load.Load1, "loadavg", "01")
		add(load.Load5, "loadavg", "05")
		add(load.Load15, "loadavg", "15")
		c.logger.Debug("collected load average",
			zap.Float64("load1", load.Load1),
			zap.Float64("load5", load.Load5),
			zap.Float64("load15", load.Load15))
	}

	return out, errors.Join(errs...)
}

// modePercent 与上次采样做差，计算各模式时间占比；首次采样只记录基准
func (c *CPUCollector) modePercent(id string, cur cpu.TimesStat) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastTimes[id]
	c.lastTimes[id] = cur
	if !ok {
		c.logger.Debug("first collect CPU times (skip mode calc)", zap.String("cpu", id))
		return nil
	}

	deltaTotal := busyTotal(cur) - busyTotal(last)
	if deltaTotal <= 0 {
		return nil
	}
	modes := map[string]float64{
		"user":    cur.User - last.User,
		"nice":    cur.Nice - last.Nice,
		"system":  cur.System - last.System,
		"idle":    cur.Idle - last.Idle,
		"iowait":  cur.Iowait - last.Iowait,
		"irq":     cur.Irq - last.Irq,
		"softirq": cur.Softirq - last.Softirq,
		"steal":   cur.Steal - last.Steal,
	}
	for k, d := range modes {
		if d < 0 {
			d = 0
		}
		modes[k] = d / deltaTotal * 100
	}
	return modes
}

// busyTotal 累计时间总和（guest 已包含在 user 中，不重复计算）
func busyTotal(t cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
}

// String 调试输出
func (c *CPUCollector) String() string {
	return fmt.Sprintf("%s(interval=%s per_core=%t)", c.name, c.interval, c.perCore)
}
