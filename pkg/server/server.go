// Package server 提供 agent 自身的 HTTP 端点：Prometheus 自监控指标（/metrics）、
// 健康检查（/health），以及优雅关闭。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/status-agent/pkg/config"
)

// httpShutdownTimeout 调用方未给出期限时的关闭超时
const httpShutdownTimeout = 5 * time.Second

// HTTPServer HTTP服务实例，封装监听地址、HTTP服务器核心对象和Prometheus指标注册器
type HTTPServer struct {
	addr     string
	server   *http.Server
	registry *prometheus.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// statusWriter 包装http.ResponseWriter，用于捕获HTTP响应状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// NewHTTPServer 创建HTTP服务实例
//
//	/metrics  agent 自身指标（采集耗时、错误数、发布数、处理器写入数）
//	/health   存活检查，返回 200 OK
//	/         端点索引
func NewHTTPServer(cfg config.ServerConfig, registry *prometheus.Registry, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	mux := http.NewServeMux()

	logRequest := func(r *http.Request, msg string, statusCode int, start time.Time) {
		logger.Debug(msg,
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	}

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(logger),
	})
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		metricsHandler.ServeHTTP(ww, r)
		logRequest(r, "metrics request received", ww.status, start)
	}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		ww.WriteHeader(http.StatusOK)
		_, _ = ww.Write([]byte("OK"))
		logRequest(r, "health check received", ww.status, start)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<html><head><title>status-agent</title></head><body>`+
			`<h1>status-agent</h1><p><a href="/metrics">metrics</a> | <a href="/health">health</a></p>`+
			`</body></html>`)
	})

	return &HTTPServer{
		addr:     cfg.Addr,
		registry: registry,
		logger:   logger,
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			ErrorLog:     zap.NewStdLog(logger),
		},
	}
}

// Start 监听并在子goroutine中提供服务（非阻塞）。监听失败同步返回
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		zap.String("listen_addr", ln.Addr().String()),
		zap.Duration("read_timeout", s.server.ReadTimeout),
		zap.Duration("write_timeout", s.server.WriteTimeout),
		zap.Duration("idle_timeout", s.server.IdleTimeout),
	)

	go func() {
		if err := s.server.Serve(ln); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				s.logger.Info("HTTP server stopped listening", zap.String("listen_addr", s.addr))
				return
			}
			s.logger.Error("HTTP server failed", zap.Error(err), zap.String("listen_addr", s.addr))
		}
	}()
	return nil
}

// Addr 实际监听地址（监听 :0 时用于获取端口）
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Handler 路由（测试用）
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Shutdown 优雅关闭：停止接收新请求，等待现有请求在期限内完成
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown of HTTP server", zap.String("listen_addr", s.addr))

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, httpShutdownTimeout)
		defer cancel()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// 超时视为关闭完成
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("HTTP server shutdown timed out", zap.String("listen_addr", s.addr))
			return nil
		}
		s.logger.Error("HTTP server shutdown failed", zap.Error(err), zap.String("listen_addr", s.addr))
		return err
	}
	s.logger.Info("HTTP server shutdown successfully", zap.String("listen_addr", s.addr))
	return nil
}
