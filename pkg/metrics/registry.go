package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registers 隔离 Prometheus 默认实现，便于单测替换
type Registers interface {
	prometheus.Registerer
}

// promRegistry Prometheus 实现，内部包裹了官方的 *prometheus.Registry
type promRegistry struct {
	registry *prometheus.Registry
}

// NewPromRegistry 创建 Prometheus 指标注册器
func NewPromRegistry(registry *prometheus.Registry) Registers {
	return &promRegistry{registry: registry}
}

// NewRegistry 创建不含 Go 运行时指标的注册器，可选注册进程指标
func NewRegistry(enableProcess bool) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if enableProcess {
		reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	return reg
}

// MustRegister 实现 prometheus.Registerer，重复注册直接 panic
func (p *promRegistry) MustRegister(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			panic(err)
		}
	}
}

// Unregister 实现 prometheus.Registerer
func (p *promRegistry) Unregister(collector prometheus.Collector) bool {
	return p.registry.Unregister(collector)
}

// Register 实现 prometheus.Registerer
func (p *promRegistry) Register(collector prometheus.Collector) error {
	return p.registry.Register(collector)
}
