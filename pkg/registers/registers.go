package registers

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/status-agent/pkg/collector"
	"github.com/status-agent/pkg/config"
	"github.com/status-agent/pkg/handler"
	"github.com/status-agent/pkg/metrics"
)

// Module 采集器注册项：开关 + 名称 + 构造函数
type Module struct {
	Enabled bool
	Name    string
	NewFunc func() (Collector, error)
}

// HandlerModule 处理器注册项
type HandlerModule struct {
	Enabled bool
	Name    string
	NewFunc func() (Handler, error)
}

// CollectorModules 按配置生成采集器注册表。新增采集器只需在列表中添加一条
func CollectorModules(cfg *config.Config, logger *zap.Logger, am *metrics.AgentMetrics) []Module {
	return []Module{
		{
			Enabled: cfg.Collectors.OpenVPN.Enable,
			Name:    collector.OpenVPNName,
			NewFunc: func() (Collector, error) {
				c, err := collector.NewOpenVPNCollector(cfg.Collectors.OpenVPN,
					cfg.IntervalOf(cfg.Collectors.OpenVPN.Interval), logger, am)
				if err != nil {
					return nil, err
				}
				return c, nil
			},
		},
		{
			Enabled: cfg.Collectors.CPU.Enable,
			Name:    collector.CPUName,
			NewFunc: func() (Collector, error) {
				return collector.NewCPUCollector(cfg.Collectors.CPU,
					cfg.IntervalOf(cfg.Collectors.CPU.Interval), logger), nil
			},
		},
	}
}

// HandlerModules 按配置生成处理器注册表
func HandlerModules(cfg *config.Config, logger *zap.Logger, am *metrics.AgentMetrics) []HandlerModule {
	return []HandlerModule{
		{
			Enabled: cfg.Handlers.Archive.Enable,
			Name:    handler.ArchiveName,
			NewFunc: func() (Handler, error) {
				h, err := handler.NewArchiveHandler(cfg.Handlers.Archive, logger, am)
				if err != nil {
					return nil, err
				}
				return h, nil
			},
		},
	}
}

// RegisterCollectors 采集器注册统一入口。构造失败视为配置错误，直接返回
func RegisterCollectors(agent Agent, modules []Module, logger *zap.Logger) ([]Collector, error) {
	var registered []Collector
	for _, m := range modules {
		if !m.Enabled {
			logger.Debug("collector disabled", zap.String("name", m.Name))
			continue
		}
		c, err := m.NewFunc()
		if err != nil {
			return nil, fmt.Errorf("collector %s: %w", m.Name, err)
		}
		if err := agent.Register(c); err != nil {
			return nil, err
		}
		registered = append(registered, c)
		logger.Debug("registered collector", zap.String("name", m.Name))
	}
	if len(registered) == 0 {
		return nil, errors.New("no collectors enabled; check the collectors section")
	}
	return registered, nil
}

// RegisterHandlers 处理器注册统一入口。单个处理器构造失败只跳过该处理器
func RegisterHandlers(agent Agent, modules []HandlerModule, logger *zap.Logger) ([]Handler, error) {
	var registered []Handler
	for _, m := range modules {
		if !m.Enabled {
			logger.Debug("handler disabled", zap.String("name", m.Name))
			continue
		}
		h, err := m.NewFunc()
		if err != nil {
			logger.Error("handler unavailable, skipped", zap.String("name", m.Name), zap.Error(err))
			continue
		}
		if err := agent.AddHandler(h); err != nil {
			_ = h.Close()
			return nil, err
		}
		registered = append(registered, h)
		logger.Debug("registered handler", zap.String("name", m.Name))
	}
	if len(registered) == 0 {
		return nil, errors.New("no handlers available")
	}
	return registered, nil
}

// NewAgentFromConfig 创建调度器并注册配置中启用的采集器及给定的处理器
func NewAgentFromConfig(cfg *config.Config, logger *zap.Logger, am *metrics.AgentMetrics,
	handlers []HandlerModule) (*AgentImpl, error) {
	agent := NewAgent(logger, am)

	collectors, err := RegisterCollectors(agent, CollectorModules(cfg, logger, am), logger)
	if err != nil {
		return nil, err
	}
	if _, err := RegisterHandlers(agent, handlers, logger); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(collectors))
	for _, c := range collectors {
		names = append(names, c.Name())
	}
	logger.Debug("all enabled collectors registered", zap.Strings("enabled_collectors", names))
	return agent, nil
}

// InitPromRegistry 返回值
// promReg	*prometheus.Registry	自身指标注册器，供 /metrics 暴露
// agent	*AgentImpl	            已启动的调度器
// error	                        配置、构造或启动失败
func InitPromRegistry(ctx context.Context, enableProcess bool, cfg *config.Config,
	logger *zap.Logger) (*prometheus.Registry, *AgentImpl, error) {
	promReg := metrics.NewRegistry(enableProcess)
	am := metrics.NewMetricFactory(metrics.NewPromRegistry(promReg)).NewAgentMetrics()

	agent, err := NewAgentFromConfig(cfg, logger, am, HandlerModules(cfg, logger, am))
	if err != nil {
		return nil, nil, err
	}
	if err := agent.Start(ctx); err != nil {
		_ = agent.Shutdown(context.Background())
		return nil, nil, err
	}
	return promReg, agent, nil
}
