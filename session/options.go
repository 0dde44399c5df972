package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/callbridge/connection"
	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/wire"
)

// Journal records frames as they cross the connection.
type Journal interface {
	Record(ctx context.Context, inbound bool, frame []byte) error
}

type options struct {
	codec          wire.Codec
	logger         *slog.Logger
	journal        Journal
	defaultTimeout time.Duration
	connOpts       []connection.Option
	readBuffer     int
}

// Option configures a Session.
type Option func(*options)

// WithCodec sets the frame codec. The default is JSON.
func WithCodec(c wire.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger for the session and its connection context.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
			o.connOpts = append(o.connOpts, connection.WithLogger(logger))
		}
	}
}

// WithMetricsRegistry records the core metrics in r.
func WithMetricsRegistry(r *metric.MetricsRegistry) Option {
	return func(o *options) {
		if r != nil {
			o.connOpts = append(o.connOpts, connection.WithMetricsRegistry(r))
		}
	}
}

// WithJournal records every inbound and outbound frame.
func WithJournal(j Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithDefaultTimeout bounds Call when the caller gives no timeout of its own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithConnectionOptions passes options through to the connection context.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(o *options) { o.connOpts = append(o.connOpts, opts...) }
}

// WithReadBuffer sets how many received frames may wait for decoding.
func WithReadBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBuffer = n
		}
	}
}
