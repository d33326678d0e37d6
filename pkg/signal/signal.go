package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout 关闭流程的默认超时
const DefaultTimeout = 10 * time.Second

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM 或 ctx 结束，然后在 timeout 内执行 shutdownFunc
func WaitForShutdown(ctx context.Context, logger *zap.Logger, timeout time.Duration,
	shutdownFunc func(ctx context.Context) error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("service is running, waiting for shutdown signal (SIGINT/SIGTERM)...")
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("context done, shutting down", zap.Error(ctx.Err()))
	}

	return Shutdown(logger, timeout, shutdownFunc)
}

// Shutdown 带超时执行关闭逻辑；超时后不再等待
func Shutdown(logger *zap.Logger, timeout time.Duration, shutdownFunc func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- shutdownFunc(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("graceful shutdown completed successfully")
		return nil
	case <-ctx.Done():
		logger.Error("graceful shutdown timed out", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}
