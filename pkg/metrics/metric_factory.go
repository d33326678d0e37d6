package metrics

import "github.com/prometheus/client_golang/prometheus"

// MetricFactory 指标工厂，用于统一创建 agent 自身的监控指标（counter/histogram）。
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// AgentMetrics agent 运行期指标集合，由采集器、处理器、调度器共享
type AgentMetrics struct {
	CollectDuration  *prometheus.HistogramVec
	CollectErrors    *prometheus.CounterVec
	ParseWarnings    *prometheus.CounterVec
	Published        *prometheus.CounterVec
	HandlerProcessed *prometheus.CounterVec
	HandlerFailures  *prometheus.CounterVec
}

// NewAgentMetrics 一次性创建并注册全部 agent 指标
func (m *MetricFactory) NewAgentMetrics() *AgentMetrics {
	return &AgentMetrics{
		CollectDuration:  m.NewAgentCollectDurationSeconds(),
		CollectErrors:    m.NewAgentCollectErrorsTotal(),
		ParseWarnings:    m.NewAgentParseWarningsTotal(),
		Published:        m.NewAgentMetricsPublishedTotal(),
		HandlerProcessed: m.NewHandlerProcessedTotal(),
		HandlerFailures:  m.NewHandlerWriteFailuresTotal(),
	}
}

// Discard 注册到一次性 registry 的指标集合，供未注入指标的组件和测试使用
func Discard() *AgentMetrics {
	return NewMetricFactory(NewPromRegistry(prometheus.NewRegistry())).NewAgentMetrics()
}
