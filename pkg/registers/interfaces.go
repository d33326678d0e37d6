package registers

import (
	"context"
	"time"

	"github.com/status-agent/pkg/metric"
)

// Agent 顶层调度接口（封装采集器、处理器的生命周期管理）
// 新增采集器/处理器只需实现对应接口，通过 Agent 注册即可
type Agent interface {
	Register(collector Collector) error // 注册采集器
	AddHandler(handler Handler) error   // 注册处理器
	Start(ctx context.Context) error    // 启动采集（每个采集器独立定时）
	Shutdown(ctx context.Context) error // 优雅停止并关闭处理器
}

// Collector 采集器核心接口（所有采集器必须实现）
type Collector interface {
	Name() string                                         // 采集器名称（唯一标识）
	Interval() time.Duration                              // 采集周期
	Collect(ctx context.Context) ([]metric.Metric, error) // 采集一次；出错时仍可返回部分结果
}

// Handler 处理器核心接口，Process 须支持并发调用，且不向调用方返回写入错误
type Handler interface {
	Name() string
	Process(m metric.Metric)
	Close() error
}
