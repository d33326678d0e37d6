package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/status-agent/pkg/config"
)

type Logger = zap.Logger

var (
	baseLogger *zap.Logger
	mu         sync.RWMutex
)

// ParseLevel 解析日志级别，未知值回落到 info
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "pan", "panic":
		return zapcore.PanicLevel
	case "fat", "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger 初始化全局日志：控制台彩色输出 + 按天轮转的文件输出
func InitLogger(cfg *config.ZapLogConfig) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", cfg.Path, err)
	}

	maxAge := time.Duration(cfg.MaxAge) * 24 * time.Hour
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	writer, err := rotatelogs.New(
		filepath.Join(cfg.Path, "agent-%Y%m%d.log"),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("create log writer: %w", err)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(fileEncoder(cfg.Format), zapcore.AddSync(writer), level),
	)

	l := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	baseLogger = l
	mu.Unlock()
	return l, nil
}

// NewStderr 仅输出到 stderr 的日志（一次性命令使用，stdout 留给结果输出）
func NewStderr(level string) *zap.Logger {
	core := zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), ParseLevel(level))
	return zap.New(core)
}

func consoleEncoder() zapcore.Encoder {
	// 控制台彩色时间
	timeEncoder := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format("2006-01-02 15:04:05.000 -07:00")))
	}

	levelEncoder := func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		var levelStr string
		switch level {
		case zapcore.DebugLevel:
			levelStr = "\033[36mDEBUG\033[0m"
		case zapcore.InfoLevel:
			levelStr = "\033[32mINFO \033[0m"
		case zapcore.WarnLevel:
			levelStr = "\033[33mWARN \033[0m"
		case zapcore.ErrorLevel:
			levelStr = "\033[31mERROR\033[0m"
		default:
			levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
		}
		enc.AppendString(levelStr)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.ConsoleSeparator = " "
	encCfg.EncodeLevel = levelEncoder
	encCfg.EncodeTime = timeEncoder
	// Caller 两级路径
	encCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func fileEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000 -07:00"))
	}
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	if format == "console" {
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

// GetLogger 返回全局日志实例，未初始化时返回 Nop，保证启动阶段调用安全
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if baseLogger == nil {
		return zap.NewNop()
	}
	return baseLogger
}

// Named 为组件创建带名称的子日志
func Named(name string) *zap.Logger {
	return GetLogger().Named(name)
}

func log(level zapcore.Level, msg string, fields ...zapcore.Field) {
	l := GetLogger().WithOptions(zap.AddCallerSkip(2))
	if ce := l.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func Debug(msg string, fields ...zapcore.Field) { log(zapcore.DebugLevel, msg, fields...) }
func Info(msg string, fields ...zapcore.Field)  { log(zapcore.InfoLevel, msg, fields...) }
func Warn(msg string, fields ...zapcore.Field)  { log(zapcore.WarnLevel, msg, fields...) }
func Error(msg string, fields ...zapcore.Field) { log(zapcore.ErrorLevel, msg, fields...) }
func Fatal(msg string, fields ...zapcore.Field) { log(zapcore.FatalLevel, msg, fields...) }

// Sync 刷盘，忽略 stdout 无效句柄错误
func Sync() error {
	mu.RLock()
	l := baseLogger
	mu.RUnlock()
	if l == nil {
		return nil
	}
	if err := l.Sync(); err != nil && !strings.Contains(err.Error(), "/dev/stdout") {
		return err
	}
	return nil
}
