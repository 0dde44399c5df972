package connection

import (
	"log/slog"

	"github.com/c360/callbridge/metric"
)

type options struct {
	logger           *slog.Logger
	metrics          *metric.Metrics
	registry         *metric.MetricsRegistry
	idBase           int64
	broadcastWorkers int
	broadcastQueue   int
}

func defaultOptions() options {
	return options{
		logger:           slog.Default(),
		idBase:           1,
		broadcastWorkers: 1,
		broadcastQueue:   256,
	}
}

// Option configures a Context.
type Option func(*options)

// WithLogger sets the logger; records are tagged with the connection id.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records pending, stray and broadcast counts.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMetricsRegistry records the core metrics and registers the broadcast pool's
// metrics. Use it for at most one context per registry.
func WithMetricsRegistry(r *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.registry = r
		if r != nil {
			o.metrics = r.CoreMetrics()
		}
	}
}

// WithIDBase sets the first request id handed out. Values below 1 are ignored.
func WithIDBase(base int64) Option {
	return func(o *options) {
		if base >= 1 {
			o.idBase = base
		}
	}
}

// WithBroadcastWorkers sets the fan-out concurrency. More than one worker gives up
// wire ordering between broadcast events.
func WithBroadcastWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.broadcastWorkers = n
		}
	}
}

// WithBroadcastQueue sets how many broadcast events may wait for fan-out.
func WithBroadcastQueue(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.broadcastQueue = n
		}
	}
}
