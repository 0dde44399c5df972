package command

import (
	"log/slog"
	"time"

	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/stream"
	"github.com/c360/callbridge/task"
)

// Option configures a Command.
type Option func(*Command)

// WithTimeout bounds the wait for an answer. Zero waits indefinitely.
func WithTimeout(d time.Duration) Option {
	return func(c *Command) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithStream makes the command collect intermediate events until one of the
// spec's terminal kinds arrives.
func WithStream(spec stream.Spec) Option {
	return func(c *Command) {
		c.stream = stream.New(spec)
	}
}

// WithLogger overrides the connection's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Command) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics overrides the connection's metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Command) {
		c.metrics = m
	}
}

// WithClock replaces the clock used to measure elapsed time.
func WithClock(now func() time.Time) Option {
	return func(c *Command) {
		if now != nil {
			c.now = now
		}
	}
}

// Then sets the task to run after the command completes when it is performed as
// part of a chain.
func Then(fn func(Result) task.Task) Option {
	return func(c *Command) {
		c.then = fn
	}
}
