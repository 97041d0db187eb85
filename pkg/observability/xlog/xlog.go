package xlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Logger 日志接口，方法只接受 slog.Attr。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// Stack 以 error 级别记录，附带当前 goroutine 的调用栈。
	Stack(ctx context.Context, msg string, attrs ...slog.Attr)

	With(attrs ...slog.Attr) Logger
	WithGroup(name string) Logger
}

// LoggerWithLevel 可在运行时调整级别的 Logger，派生的 logger 跟随变化。
type LoggerWithLevel interface {
	Logger
	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}

// Level 日志级别，数值与 slog.Level 一致。
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel 大小写不敏感，未知名称返回错误和 LevelInfo。
func ParseLevel(s string) (Level, error) {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
}

func (l Level) String() string { return slog.Level(l).String() }

// MarshalText 输出 DEBUG/INFO/WARN/ERROR。
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalText 让配置文件可以直接写 "warn"。
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
