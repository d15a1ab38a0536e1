package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger    *slog.Logger
	loggerMu  sync.RWMutex
	output    io.Writer = os.Stdout
	debugMode bool
)

func init() {
	logger = newLogger(output, slog.LevelInfo)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func currentLevel() slog.Level {
	if debugMode {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// SetDebugMode 切换 Debug 级别 (调度器每个 tick 的报告只在 Debug 下输出)
func SetDebugMode(enabled bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	debugMode = enabled
	logger = newLogger(output, currentLevel())
}

// IsDebugMode 是否调试模式
func IsDebugMode() bool {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return debugMode
}

// SetOutput 重定向日志输出，测试里用来捕获日志
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	output = w
	logger = newLogger(output, currentLevel())
}

// With 返回带固定属性的子 logger，例如 logger.With("component", "scheduler")
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

func get() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	return l
}

// LogDebug 调试日志
func LogDebug(msg string, args ...any) { get().Debug(msg, args...) }

// LogInfo 信息日志
func LogInfo(msg string, args ...any) { get().Info(msg, args...) }

// LogWarn 警告日志
func LogWarn(msg string, args ...any) { get().Warn(msg, args...) }

// LogError 错误日志
func LogError(msg string, args ...any) { get().Error(msg, args...) }
