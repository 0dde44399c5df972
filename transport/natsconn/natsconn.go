// Package natsconn carries connection frames over NATS subjects. One logical
// connection uses two subjects: <prefix>.<id>.calls towards the remote and
// <prefix>.<id>.events back from it.
package natsconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/natsclient"
	"github.com/c360/callbridge/transport"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "callbridge"

// Subjects returns the calls and events subjects of connection id.
func Subjects(prefix, id string) (calls, events string) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	base := prefix + "." + natsclient.SubjectToken(id)
	return base + ".calls", base + ".events"
}

// Conn is a transport.Conn over a shared NATS client.
type Conn struct {
	client  *natsclient.Client
	publish string
	sub     *nats.Subscription
	inbox   chan []byte
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
	// life bounds the subscription; it ends with Close, not with the dial context.
	life context.Context
	stop context.CancelFunc
}

// Option configures a Conn.
type Option func(*options)

type options struct {
	buffer int
	logger *slog.Logger
}

// WithBuffer sets how many inbound frames may queue before the subscription
// handler blocks.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Dial opens the client side of connection id: it publishes calls and receives
// events.
func Dial(ctx context.Context, client *natsclient.Client, prefix, id string, opts ...Option) (*Conn, error) {
	calls, events := Subjects(prefix, id)
	return open(ctx, client, calls, events, opts)
}

// Accept opens the remote side of connection id: it receives calls and publishes
// events.
func Accept(ctx context.Context, client *natsclient.Client, prefix, id string, opts ...Option) (*Conn, error) {
	calls, events := Subjects(prefix, id)
	return open(ctx, client, events, calls, opts)
}

func open(ctx context.Context, client *natsclient.Client, publish, receive string, opts []Option) (*Conn, error) {
	o := options{buffer: 1024, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Conn{
		client:  client,
		publish: publish,
		inbox:   make(chan []byte, o.buffer),
		done:    make(chan struct{}),
		logger:  o.logger.With("publish", publish, "receive", receive),
	}
	c.life, c.stop = context.WithCancel(context.WithoutCancel(ctx))

	sub, err := client.Subscribe(c.life, receive, c.receive)
	if err != nil {
		c.stop()
		return nil, errs.Wrap(err, "natsconn", "open", fmt.Sprintf("subscribe %s", receive))
	}
	c.sub = sub

	// Make sure the server knows about the subscription before anything is sent
	// that could be answered on it.
	if err := client.Flush(ctx); err != nil {
		c.stop()
		_ = sub.Unsubscribe()
		return nil, errs.WrapTransient(err, "natsconn", "open", "flush subscription")
	}
	return c, nil
}

// receive runs on the subscription's goroutine, so frames stay in order. A full
// inbox blocks it until the per-message context ends; then the frame is dropped.
// A frame is never dropped while the inbox has room.
func (c *Conn) receive(ctx context.Context, data []byte) {
	select {
	case c.inbox <- data:
		return
	default:
	}
	select {
	case c.inbox <- data:
	case <-c.done:
	case <-ctx.Done():
		c.logger.Warn("inbound frame dropped", "error", ctx.Err(), "size", len(data))
	}
}

// Send publishes one frame.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	return c.client.Publish(ctx, c.publish, frame)
}

// Recv returns the next inbound frame.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.inbox:
		return frame, nil
	case <-c.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unsubscribes. The shared client stays open.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.stop()
		if uerr := c.sub.Unsubscribe(); uerr != nil && uerr != nats.ErrConnectionClosed {
			err = errs.Wrap(uerr, "natsconn", "Close", "unsubscribe")
		}
	})
	return err
}

var _ transport.Conn = (*Conn)(nil)
