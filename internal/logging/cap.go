package logging

import (
	"log/slog"
	"sync/atomic"
)

// DefaultErrorCap bounds how many GPU-path error records a CappedLogger
// emits per process. A persistently failing graphics call fires every
// frame; without a cap the log file fills with the same HRESULT at 90Hz.
const DefaultErrorCap = 256

// CappedLogger wraps a component logger and stops emitting error records
// after a fixed number of them. Info/debug records are not counted.
type CappedLogger struct {
	logger *slog.Logger
	limit  int64
	count  atomic.Int64
}

// NewCapped returns a CappedLogger over the given logger. limit <= 0 uses
// DefaultErrorCap.
func NewCapped(logger *slog.Logger, limit int) *CappedLogger {
	if limit <= 0 {
		limit = DefaultErrorCap
	}
	return &CappedLogger{logger: logger, limit: int64(limit)}
}

// Error logs at error level until the cap is reached. The record that hits
// the cap is followed by a single notice that further errors are dropped.
func (c *CappedLogger) Error(msg string, args ...any) {
	n := c.count.Add(1)
	if n > c.limit {
		return
	}
	c.logger.Error(msg, args...)
	if n == c.limit {
		c.logger.Warn("error cap reached, suppressing further errors", "cap", c.limit)
	}
}

// Warn logs at warn level, also counted against the cap.
func (c *CappedLogger) Warn(msg string, args ...any) {
	n := c.count.Add(1)
	if n > c.limit {
		return
	}
	c.logger.Warn(msg, args...)
	if n == c.limit {
		c.logger.Warn("error cap reached, suppressing further errors", "cap", c.limit)
	}
}

// Suppressed reports how many records were dropped after the cap.
func (c *CappedLogger) Suppressed() int64 {
	n := c.count.Load() - c.limit
	if n < 0 {
		return 0
	}
	return n
}
