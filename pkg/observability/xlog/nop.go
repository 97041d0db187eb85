package xlog

import (
	"io"
	"log/slog"
)

// Discard 返回丢弃所有输出的 Logger，任何级别都不启用。
func Discard() LoggerWithLevel {
	c := &core{level: new(slog.LevelVar)}
	c.level.Set(slog.LevelError + 1)
	return newLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: c.level}), c)
}

// Default 返回 stderr、info 级别、text 格式的 Logger。
func Default() LoggerWithLevel {
	logger, _, err := New().Build()
	if err != nil {
		return Discard()
	}
	return logger
}
