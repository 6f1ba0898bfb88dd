package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 定义日志初始化配置
// Level 支持 debug/info/warn/error，Environment 支持 prod/dev 等
// Format 可强制 json/console，为空时按 Environment 推断
// File 非空时额外写入滚动日志文件
type Config struct {
	Level       string
	Environment string
	Format      string
	WithSource  bool

	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	global *slog.Logger
	once   sync.Once
)

func levelFromString(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.New("invalid log level: " + level)
	}
}

// useJSON 判断是否输出 JSON 格式
func useJSON(cfg Config) bool {
	switch strings.ToLower(cfg.Format) {
	case "json":
		return true
	case "console", "text":
		return false
	}
	env := strings.ToLower(cfg.Environment)
	return env == "prod" || env == "production"
}

// newWriter 构造输出目标，配置了 File 时使用 lumberjack 滚动
func newWriter(cfg Config) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    orDefault(cfg.MaxSizeMB, 100), // MB
		MaxBackups: orDefault(cfg.MaxBackups, 10),
		MaxAge:     orDefault(cfg.MaxAgeDays, 30), // days
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotating)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// New 根据配置创建新的 slog.Logger，不设置全局实例
func New(cfg Config) (*slog.Logger, error) {
	return NewWithWriter(cfg, newWriter(cfg))
}

// NewWithWriter 使用指定输出创建 logger（测试中常用）
func NewWithWriter(cfg Config, w io.Writer) (*slog.Logger, error) {
	lvl, err := levelFromString(cfg.Level)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl, AddSource: cfg.WithSource}
	var handler slog.Handler
	if useJSON(cfg) {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler), nil
}

// Init 初始化全局日志实例，重复调用将返回首次创建的 logger
func Init(cfg Config) (*slog.Logger, error) {
	var initErr error
	once.Do(func() {
		global, initErr = New(cfg)
	})
	return global, initErr
}

// L 返回已初始化的全局 logger，未初始化时返回 slog 默认 logger
func L() *slog.Logger {
	if global == nil {
		return slog.Default()
	}
	return global
}

// LogTranscription 记录一次转写事件的结构化日志
// source: upload/url/legacy
// action: start/success/error
// durationMs: 处理耗时（毫秒）
// errorCode: 错误代码（可选）
func LogTranscription(logger *slog.Logger, source, action, backend string, durationMs int64, errorCode string) {
	attrs := []slog.Attr{
		slog.String("component", "transcription"),
		slog.String("source", source),
		slog.String("action", action),
		slog.String("backend", backend),
		slog.Int64("duration_ms", durationMs),
	}

	if errorCode != "" {
		attrs = append(attrs, slog.String("error_code", errorCode))
		logger.LogAttrs(context.Background(), slog.LevelError, "transcription error", attrs...)
	} else {
		logger.LogAttrs(context.Background(), slog.LevelInfo, "transcription event", attrs...)
	}
}
