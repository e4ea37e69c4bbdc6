// Package logging 初始化进程级 slog 日志
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// Config 日志配置
type Config struct {
	// Level debug | info | warn | error
	Level string
	// Format text | json
	Format string
	// Output 输出目标（默认 stderr，CLI 的标准输出留给命令结果）
	Output io.Writer
}

// Init 配置默认 slog 日志器并接管标准库 log 输出
func Init(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	stdLogger := slog.NewLogLogger(handler, level)
	log.SetFlags(0)
	log.SetOutput(stdLogger.Writer())

	return logger
}

// ParseLevel 解析日志级别，未知值按 info 处理
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
