package handler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"

	"github.com/status-agent/pkg/config"
	"github.com/status-agent/pkg/metric"
	"github.com/status-agent/pkg/metrics"
)

const ArchiveName = "archive"

var (
	ErrSinkUnavailable = errors.New("sink unavailable")
	ErrHandlerClosed   = errors.New("handler closed")
)

// 归档文件后缀：<log_file>.2006-01-02
const archiveSuffix = ".%Y-%m-%d"

// ArchiveHandler 将指标逐行写入本地归档文件，按自然日切分，保留 days 个历史文件。
//
// 所有写入经同一把锁串行化；切分（定时器或写入时触发）也在锁内进行，
// 因此一行要么完整落在切分前的文件，要么完整落在切分后的文件。
type ArchiveHandler struct {
	name    string
	logFile string
	days    int

	mu     sync.Mutex
	sink   *rotatelogs.RotateLogs
	clock  rotatelogs.Clock
	closed bool

	after func(time.Duration) <-chan time.Time
	stop  chan struct{}
	done  chan struct{}

	logger  *zap.Logger
	metrics *metrics.AgentMetrics
}

// ArchiveOption 归档处理器可选项
type ArchiveOption func(*ArchiveHandler)

// WithClock 替换时钟（测试中模拟跨天）
func WithClock(clock rotatelogs.Clock) ArchiveOption {
	return func(h *ArchiveHandler) { h.clock = clock }
}

// NewArchiveHandler 创建归档处理器。目标不可写时返回 ErrSinkUnavailable
func NewArchiveHandler(cfg config.ArchiveHandlerConfig, logger *zap.Logger,
	am *metrics.AgentMetrics, opts ...ArchiveOption) (*ArchiveHandler, error) {
	if cfg.LogFile == "" {
		return nil, fmt.Errorf("%w: empty log_file", ErrSinkUnavailable)
	}
	if cfg.Days < 0 {
		return nil, fmt.Errorf("archive: days must be >= 0, got %d", cfg.Days)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if am == nil {
		am = metrics.Discard()
	}

	h := &ArchiveHandler{
		name:    ArchiveName,
		logFile: cfg.LogFile,
		days:    cfg.Days,
		clock:   rotatelogs.Local,
		after:   time.After,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("handler", ArchiveName), zap.String("path", cfg.LogFile)),
		metrics: am,
	}
	for _, o := range opts {
		o(h)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	if err := h.adoptExisting(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}

	// 计数包含当前文件，MaxAge 与 RotationCount 不能同时设置
	sink, err := rotatelogs.New(
		cfg.LogFile+archiveSuffix,
		rotatelogs.WithLinkName(cfg.LogFile),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithRotationCount(uint(cfg.Days+1)),
		rotatelogs.WithClock(h.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	// 空写入打开当前文件，尽早暴露权限问题
	if _, err := sink.Write(nil); err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	h.sink = sink
	go h.loop()

	h.logger.Info("archive handler opened",
		zap.String("file", sink.CurrentFileName()),
		zap.Int("days", cfg.Days))
	return h, nil
}

func (h *ArchiveHandler) Name() string { return h.name }

// Process 写入一行 "<path> <value>"。写失败只记录日志与计数，不向调用方传播
func (h *ArchiveHandler) Process(m metric.Metric) {
	line := m.Render() + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.metrics.HandlerFailures.WithLabelValues(h.name).Inc()
		h.logger.Warn("metric dropped", zap.String("metric", m.Path()), zap.Error(ErrHandlerClosed))
		return
	}
	if _, err := h.sink.Write([]byte(line)); err != nil {
		h.metrics.HandlerFailures.WithLabelValues(h.name).Inc()
		h.logger.Error("archive write failed", zap.String("metric", m.Path()), zap.Error(err))
		return
	}
	h.metrics.HandlerProcessed.WithLabelValues(h.name).Inc()
}

// CurrentFile 当前写入的文件
func (h *ArchiveHandler) CurrentFile() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink.CurrentFileName()
}

// Close 停止定时器并关闭文件，可重复调用
func (h *ArchiveHandler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stop)
	err := h.sink.Close()
	h.mu.Unlock()

	<-h.done
	h.logger.Info("archive handler closed")
	return err
}

// rotate 空写入触发按日切分，同时清理超出保留数的旧文件
func (h *ArchiveHandler) rotate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	before := h.sink.CurrentFileName()
	if _, err := h.sink.Write(nil); err != nil {
		h.logger.Error("archive rotation failed", zap.Error(err))
		return
	}
	if after := h.sink.CurrentFileName(); after != before {
		h.logger.Info("archive rotated", zap.String("from", before), zap.String("to", after))
	}
}

// loop 每到本地零点切分一次，保证无写入时也按天切分
func (h *ArchiveHandler) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case <-h.after(untilMidnight(h.clock.Now())):
			h.rotate()
		}
	}
}

// adoptExisting log_file 位置已有普通文件时（旧版本直接写该路径），
// 将其并入按日命名的归档文件，避免被符号链接覆盖
func (h *ArchiveHandler) adoptExisting() error {
	fi, err := os.Lstat(h.logFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%s exists and is not a regular file", h.logFile)
	}

	target := h.logFile + "." + fi.ModTime().Format("2006-01-02")
	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		if err := os.Rename(h.logFile, target); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else if err := appendFile(target, h.logFile); err != nil {
		return err
	}
	h.logger.Warn("adopted existing archive file", zap.String("into", target), zap.Int64("size", fi.Size()))
	return nil
}

// appendFile 把 src 追加到 dst 末尾后删除 src
func appendFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// untilMidnight 距下一个本地零点的时长（留出 1s 余量，避免落在前一天）
func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now) + time.Second
}
