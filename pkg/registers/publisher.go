package registers

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/status-agent/pkg/metric"
	"github.com/status-agent/pkg/metrics"
)

// Publisher 把每个指标分发给全部处理器；单个处理器 panic 不影响其他处理器
type Publisher struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *zap.Logger
	metrics  *metrics.AgentMetrics
}

func NewPublisher(logger *zap.Logger, am *metrics.AgentMetrics) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if am == nil {
		am = metrics.Discard()
	}
	return &Publisher{logger: logger, metrics: am}
}

// Add 追加处理器，名称重复返回错误
func (p *Publisher) Add(h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.handlers {
		if existing.Name() == h.Name() {
			return fmt.Errorf("handler %q already registered", h.Name())
		}
	}
	p.handlers = append(p.handlers, h)
	return nil
}

// Handlers 返回副本
func (p *Publisher) Handlers() []Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Handler(nil), p.handlers...)
}

// Publish 依次交给每个处理器
func (p *Publisher) Publish(m metric.Metric) {
	p.mu.RLock()
	handlers := p.handlers
	p.mu.RUnlock()

	for _, h := range handlers {
		p.deliver(h, m)
	}
}

func (p *Publisher) deliver(h Handler, m metric.Metric) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.HandlerFailures.WithLabelValues(h.Name()).Inc()
			p.logger.Error("handler panicked",
				zap.String("handler", h.Name()),
				zap.String("metric", m.Path()),
				zap.Any("panic", r))
		}
	}()
	h.Process(m)
}
