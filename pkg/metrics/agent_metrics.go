package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewAgentCollectErrorsTotal 创建「采集错误总数」指标
// 标签 collector: 采集器名称（如 "openvpn"、"cpu"）
// 数据源不可读、解析失败等导致单次采集返回错误时 +1
func (m *MetricFactory) NewAgentCollectErrorsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_collect_errors_total",
		Help: "Total collection cycles that recorded an error",
	}, []string{"collector"})
	m.reg.MustRegister(c)
	return c
}

// NewAgentCollectDurationSeconds 创建「采集耗时分布」指标
// 使用Prometheus默认分桶 [0.005 ... 10] 秒
func (m *MetricFactory) NewAgentCollectDurationSeconds() *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_collect_duration_seconds",
		Help:    "Collection duration per collector",
		Buckets: prometheus.DefBuckets,
	}, []string{"collector"})
	m.reg.MustRegister(h)
	return h
}

// NewAgentParseWarningsTotal 被跳过的格式错误行数
func (m *MetricFactory) NewAgentParseWarningsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_parse_warnings_total",
		Help: "Total malformed source lines skipped by collectors",
	}, []string{"collector"})
	m.reg.MustRegister(c)
	return c
}

// NewAgentMetricsPublishedTotal 采集器发布到处理器的指标数
func (m *MetricFactory) NewAgentMetricsPublishedTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_metrics_published_total",
		Help: "Total metrics published by collectors",
	}, []string{"collector"})
	m.reg.MustRegister(c)
	return c
}

// NewHandlerProcessedTotal 处理器成功写出的指标数
func (m *MetricFactory) NewHandlerProcessedTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_handler_processed_total",
		Help: "Total metrics successfully processed per handler",
	}, []string{"handler"})
	m.reg.MustRegister(c)
	return c
}

// NewHandlerWriteFailuresTotal 处理器写失败次数（已记录日志，不向调用方传播）
func (m *MetricFactory) NewHandlerWriteFailuresTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_handler_write_failures_total",
		Help: "Total failed writes per handler",
	}, []string{"handler"})
	m.reg.MustRegister(c)
	return c
}
