package xcron

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats 执行统计，并发安全。
type Stats struct {
	executions atomic.Int64
	failures   atomic.Int64
	skips      atomic.Int64

	mu       sync.RWMutex
	lastRun  time.Time
	lastErr  error
	lastTook time.Duration
}

// Executions 实际执行次数（不含跳过）。
func (s *Stats) Executions() int64 { return s.executions.Load() }

// Failures 返回 error 或 panic 的次数。
func (s *Stats) Failures() int64 { return s.failures.Load() }

// Skips 因锁被占用或加锁失败而跳过的次数。
func (s *Stats) Skips() int64 { return s.skips.Load() }

// Last 最近一次执行的时间、耗时和错误。
func (s *Stats) Last() (at time.Time, took time.Duration, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.lastTook, s.lastErr
}

func (s *Stats) recordSkip() {
	s.skips.Add(1)
}

func (s *Stats) recordExecution(start time.Time, err error) {
	s.executions.Add(1)
	if err != nil {
		s.failures.Add(1)
	}
	s.mu.Lock()
	s.lastRun = start
	s.lastTook = time.Since(start)
	s.lastErr = err
	s.mu.Unlock()
}
