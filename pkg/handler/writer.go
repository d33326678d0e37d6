package handler

import (
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/status-agent/pkg/metric"
	"github.com/status-agent/pkg/metrics"
)

// WriterHandler 把指标按归档格式写到任意 io.Writer（collect 子命令输出到 stdout）
type WriterHandler struct {
	name    string
	mu      sync.Mutex
	w       io.Writer
	logger  *zap.Logger
	metrics *metrics.AgentMetrics
}

func NewWriterHandler(name string, w io.Writer, logger *zap.Logger, am *metrics.AgentMetrics) *WriterHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if am == nil {
		am = metrics.Discard()
	}
	return &WriterHandler{
		name:    name,
		w:       w,
		logger:  logger.With(zap.String("handler", name)),
		metrics: am,
	}
}

func (h *WriterHandler) Name() string { return h.name }

func (h *WriterHandler) Process(m metric.Metric) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, m.Render()+"\n"); err != nil {
		h.metrics.HandlerFailures.WithLabelValues(h.name).Inc()
		h.logger.Error("write failed", zap.String("metric", m.Path()), zap.Error(err))
		return
	}
	h.metrics.HandlerProcessed.WithLabelValues(h.name).Inc()
}

func (h *WriterHandler) Close() error { return nil }
