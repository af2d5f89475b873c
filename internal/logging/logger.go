// Package logging 结构化日志
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"nni-keeper/internal/config"
)

// Logger 结构化日志器
type Logger struct {
	*slog.Logger
	component string
}

// New 按配置创建日志器
func New(cfg config.LogConfig, component string) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	return NewWithWriter(output, level, cfg.Format, component)
}

// NewWithWriter 输出到指定 writer（测试中用于捕获日志）
func NewWithWriter(w io.Writer, level slog.Level, format, component string) *Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger:    slog.New(handler).With(slog.String("component", component)),
		component: component,
	}
}

// Discard 丢弃所有输出
func Discard() *Logger {
	return NewWithWriter(io.Discard, slog.LevelError, "text", "discard")
}

func (l *Logger) with(attrs ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(attrs...),
		component: l.component,
	}
}

// WithRunID 添加 NNI 实验 ID
func (l *Logger) WithRunID(runID string) *Logger {
	return l.with(slog.String("run_id", runID))
}

// WithExperiment 添加实验名
func (l *Logger) WithExperiment(name string) *Logger {
	return l.with(slog.String("experiment", name))
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with(slog.String("error", err.Error()))
}

// WithDuration 添加持续时间
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.with(slog.Float64("duration_ms", float64(d.Milliseconds())))
}

// Printf 以 Warn 级别输出，供 gorm 等只接受 Printf 的库使用
func (l *Logger) Printf(format string, args ...any) {
	l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
