package registers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/status-agent/pkg/metric"
	"github.com/status-agent/pkg/metrics"
)

// DefaultInterval 采集器未给出有效周期时使用
const DefaultInterval = 10 * time.Second

var (
	ErrAlreadyStarted = errors.New("agent already started")
	ErrNoCollectors   = errors.New("no collectors registered")
	ErrNoHandlers     = errors.New("no handlers registered")
)

// AgentImpl 实现 registers.Agent 接口
//
// 每个采集器在独立的 goroutine 中按自己的周期运行，互不共享可变状态；
// 一个周期超过 interval 时，期间错过的 tick 被丢弃（不会堆积并发周期）。
type AgentImpl struct {
	mu         sync.Mutex
	collectors []Collector
	publisher  *Publisher
	logger     *zap.Logger
	metrics    *metrics.AgentMetrics

	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewAgent 创建调度器
func NewAgent(logger *zap.Logger, am *metrics.AgentMetrics) *AgentImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	if am == nil {
		am = metrics.Discard()
	}
	return &AgentImpl{
		publisher: NewPublisher(logger, am),
		logger:    logger,
		metrics:   am,
	}
}

// Register 注册采集器，名称须唯一
func (r *AgentImpl) Register(c Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyStarted
	}
	for _, existing := range r.collectors {
		if existing.Name() == c.Name() {
			return fmt.Errorf("collector %q already registered", c.Name())
		}
	}
	r.collectors = append(r.collectors, c)
	return nil
}

// AddHandler 注册处理器
func (r *AgentImpl) AddHandler(h Handler) error {
	return r.publisher.Add(h)
}

// Collectors 已注册的采集器（副本）
func (r *AgentImpl) Collectors() []Collector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Collector(nil), r.collectors...)
}

// Handlers 已注册的处理器（副本）
func (r *AgentImpl) Handlers() []Handler {
	return r.publisher.Handlers()
}

// CollectOnce 执行一个采集周期并发布结果。采集器出错时已返回的部分指标照常发布
func (r *AgentImpl) CollectOnce(ctx context.Context, c Collector) (int, error) {
	log := r.logger.With(zap.String("collector", c.Name()), zap.String("cycle", uuid.NewString()))

	start := time.Now()
	ms, err := safeCollect(ctx, c)
	elapsed := time.Since(start)
	r.metrics.CollectDuration.WithLabelValues(c.Name()).Observe(elapsed.Seconds())
	if err != nil {
		r.metrics.CollectErrors.WithLabelValues(c.Name()).Inc()
		log.Warn("collection failed", zap.Int("partial", len(ms)), zap.Error(err))
	}

	for _, m := range ms {
		r.publisher.Publish(m)
	}
	r.metrics.Published.WithLabelValues(c.Name()).Add(float64(len(ms)))

	log.Debug("collection cycle finished", zap.Int("metrics", len(ms)), zap.Duration("elapsed", elapsed))
	return len(ms), err
}

// CollectAll 对所有采集器各执行一次（单个采集器失败不影响其他）
func (r *AgentImpl) CollectAll(ctx context.Context) error {
	var errs []error
	for _, c := range r.Collectors() {
		if _, err := r.CollectOnce(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Start 启动全部采集器（非阻塞），首次采集立即执行
func (r *AgentImpl) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil || r.closed {
		return ErrAlreadyStarted
	}
	if len(r.collectors) == 0 {
		return ErrNoCollectors
	}
	if len(r.publisher.Handlers()) == 0 {
		return ErrNoHandlers
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)
	for _, c := range r.collectors {
		c := c
		g.Go(func() error {
			r.run(gctx, c)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(r.done)
	}()

	names := make([]string, 0, len(r.collectors))
	for _, c := range r.collectors {
		names = append(names, c.Name())
	}
	r.logger.Info("agent started", zap.Strings("collectors", names))
	return nil
}

func (r *AgentImpl) run(ctx context.Context, c Collector) {
	interval := c.Interval()
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.logger.Debug("collector loop started", zap.String("collector", c.Name()), zap.Duration("interval", interval))

	_, _ = r.CollectOnce(ctx, c)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("collector loop stopped", zap.String("collector", c.Name()))
			return
		case <-ticker.C:
			_, _ = r.CollectOnce(ctx, c)
		}
	}
}

// Shutdown 停止采集并关闭全部处理器。ctx 超时后不再等待采集 goroutine，但仍关闭处理器
func (r *AgentImpl) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	r.logger.Info("starting to shutdown agent")

	var errs []error
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait collectors: %w", ctx.Err()))
		}
	}

	for _, h := range r.publisher.Handlers() {
		if err := h.Close(); err != nil {
			r.logger.Error("failed to close handler", zap.String("handler", h.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
			continue
		}
		r.logger.Debug("handler closed", zap.String("handler", h.Name()))
	}
	return errors.Join(errs...)
}

// safeCollect 采集器 panic 视为本周期失败
func safeCollect(ctx context.Context, c Collector) (ms []metric.Metric, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("collector panicked: %v", rec)
		}
	}()
	return c.Collect(ctx)
}
