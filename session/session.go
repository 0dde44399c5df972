// Package session ties a transport connection to a connection context: it reads
// frames, decodes them into events, dispatches them in wire order, and issues
// calls as commands.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/c360/callbridge/command"
	"github.com/c360/callbridge/connection"
	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/task"
	"github.com/c360/callbridge/transport"
	"github.com/c360/callbridge/wire"
)

// Session is one logical connection to the remote.
type Session struct {
	conn     transport.Conn
	registry *wire.Registry
	cc       *connection.Context
	writer   wire.Writer
	opts     options
	logger   *slog.Logger
	metrics  *metric.Metrics

	running   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a session over conn. Inbound frames are decoded with registry. The
// connection context is created here and destroyed by Close.
func New(conn transport.Conn, registry *wire.Registry, opts ...Option) *Session {
	o := options{
		codec:      wire.JSON(),
		logger:     slog.Default(),
		readBuffer: 256,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		conn:     conn,
		registry: registry,
		opts:     o,
	}
	s.cc = connection.New(o.connOpts...)
	s.metrics = s.cc.Metrics()
	s.logger = o.logger.With("connection", s.cc.ID())
	s.writer = wire.Writer{Codec: o.codec, Conn: frameSender{s}}
	return s
}

// Context returns the session's connection context.
func (s *Session) Context() *connection.Context { return s.cc }

// Codec returns the frame codec.
func (s *Session) Codec() wire.Codec { return s.opts.codec }

// Sender returns the sender commands on this session transmit through.
func (s *Session) Sender() task.Sender { return s.writer }

// Run reads and dispatches frames until ctx ends or the connection closes. One
// goroutine reads while another decodes and dispatches, both in wire order. When
// Run returns the connection context is closed, so waiting calls fail with
// ErrConnectionClosed.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errs.WrapInvalid(errs.ErrAlreadyStarted, "Session", "Run", "start receive loop")
	}
	defer s.cc.Close()

	s.logger.Info("session started", "codec", s.opts.codec.ContentType())
	defer s.logger.Info("session stopped", "pending", s.cc.Pending())

	frames := make(chan []byte, s.opts.readBuffer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(frames)
		return s.read(gctx, frames)
	})
	g.Go(func() error {
		s.dispatch(gctx, frames)
		return nil
	})
	return g.Wait()
}

func (s *Session) read(ctx context.Context, frames chan<- []byte) error {
	for {
		frame, err := s.conn.Recv(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, stderrors.Is(err, transport.ErrClosed):
				return nil
			default:
				return errs.WrapTransient(err, "Session", "Run", "receive frame")
			}
		}
		s.record(ctx, true, frame)
		select {
		case frames <- frame:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) dispatch(ctx context.Context, frames <-chan []byte) {
	for frame := range frames {
		ev, err := s.registry.Decode(s.opts.codec, frame)
		if err != nil {
			s.logger.Warn("dropping undecodable frame", "error", err, "size", len(frame))
			s.metrics.RecordDecodeError()
			continue
		}
		route := s.cc.Dispatch(ev)
		if s.logger.Enabled(ctx, slog.LevelDebug) {
			s.logger.Debug("event dispatched", "event", task.Describe(ev), "route", route.String())
		}
	}
}

// Call invokes call as a command and waits for its answer. Without WithTimeout
// among opts the session's default timeout applies.
func (s *Session) Call(ctx context.Context, call task.CallTask, opts ...command.Option) (command.Result, error) {
	return s.Command(call, opts...).Invoke(ctx)
}

// Command builds a command for call without invoking it.
func (s *Session) Command(call task.CallTask, opts ...command.Option) *command.Command {
	if s.opts.defaultTimeout > 0 {
		opts = append([]command.Option{command.WithTimeout(s.opts.defaultTimeout)}, opts...)
	}
	opts = append([]command.Option{command.WithLogger(s.logger)}, opts...)
	return command.New(s.cc, s.writer, call, opts...)
}

// Send transmits a call that expects no answer.
func (s *Session) Send(ctx context.Context, call task.CallTask) error {
	if call.HasRequestID() {
		return errs.WrapInvalid(fmt.Errorf("%w: %s expects an answer", errs.ErrInvalidData, call.Name()),
			"Session", "Send", "check call")
	}
	_, err := s.Command(call).Invoke(ctx)
	return err
}

// Subscribe registers handler for broadcast events of kind.
func (s *Session) Subscribe(kind task.EventKind, handler connection.Handler) (cancel func()) {
	return s.cc.Subscribe(kind, handler)
}

// Close destroys the connection context and closes the connection.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = stderrors.Join(s.cc.Close(), s.conn.Close())
	})
	return s.closeErr
}

func (s *Session) record(ctx context.Context, inbound bool, frame []byte) {
	if s.opts.journal == nil {
		return
	}
	if err := s.opts.journal.Record(ctx, inbound, frame); err != nil {
		s.logger.Warn("journal record failed", "inbound", inbound, "error", err)
	}
}

// frameSender journals outbound frames on their way to the connection.
type frameSender struct{ s *Session }

func (f frameSender) Send(ctx context.Context, frame []byte) error {
	if err := f.s.conn.Send(ctx, frame); err != nil {
		return err
	}
	f.s.record(ctx, false, frame)
	return nil
}
