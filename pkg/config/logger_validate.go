package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validate 日志配置校验
//
//	Level   oneof 预校验后再做小写 map lookup
//	Format  oneof=json console
//	Path    可写目录，不存在则自动创建
//	MaxAge  gte=0
func (l *ZapLogConfig) Validate() error {
	if err := valid.Struct(l); err != nil {
		return fmt.Errorf("log config invalid: %w", err)
	}

	validLevels := map[string]bool{
		"debug":  true,
		"info":   true,
		"warn":   true,
		"error":  true,
		"dpanic": true,
		"panic":  true,
		"fatal":  true,
	}
	if !validLevels[strings.ToLower(l.Level)] {
		return fmt.Errorf("log.level invalid (valid: debug/info/warn/error), got %s", l.Level)
	}

	abs, err := filepath.Abs(l.Path)
	if err != nil {
		return fmt.Errorf("log.path failed to parse the log path, got %s: %w", l.Path, err)
	}
	if err := ensureDir(abs); err != nil {
		return fmt.Errorf("log.path the log directory is not writable, got %s: %w", l.Path, err)
	}
	return nil
}

func ensureDir(path string) error {
	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
