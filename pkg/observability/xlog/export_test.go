package xlog

// ErrorCount 测试读取写入失败计数。
func ErrorCount(l Logger) uint64 {
	if xl, ok := l.(*xlogger); ok {
		return xl.core.failures.Load()
	}
	return 0
}
