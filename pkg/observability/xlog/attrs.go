package xlog

import (
	"log/slog"
	"time"
)

// 常用字段名。
const (
	KeyError     = "error"
	KeyStack     = "stack"
	KeyDuration  = "duration"
	KeyCount     = "count"
	KeyComponent = "component"
	KeyOperation = "operation"
)

// Err 错误属性，err 为 nil 时返回空属性（被 slog 忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 耗时属性。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Count 计数属性。
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// Component 组件名属性。
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 操作名属性。
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}
