// Package command turns one asynchronous call into a blocking, timeout-bounded
// request: it registers the call's request id, transmits it, and waits for the
// correlated answer.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/callbridge/connection"
	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/stream"
	"github.com/c360/callbridge/task"
)

// Sentinel errors callers test with errors.Is.
var (
	ErrTimeout        = errs.ErrTimeout
	ErrAlreadyInvoked = errs.ErrAlreadyInvoked
)

// Result is the outcome of Invoke.
type Result struct {
	State     State
	RequestID task.RequestID
	// Event is the single answer, or the terminal event of a stream.
	Event task.EventTask
	// Stream holds the intermediate events of a streaming command.
	Stream  *stream.Channel
	Elapsed time.Duration
}

// Failure returns the remote error carried by the answering event, if any. Remote
// errors are answers, not failures of the call itself.
func (r Result) Failure() error {
	if f, ok := r.Event.(task.Failure); ok {
		return f.Failure()
	}
	return nil
}

// Streamer is implemented by calls whose answer is a stream. Commands for them
// collect a stream without an explicit WithStream option.
type Streamer interface {
	StreamSpec() stream.Spec
}

// Command pairs one call with its answer. A command is invoked at most once.
type Command struct {
	cc      *connection.Context
	sender  task.Sender
	call    task.CallTask
	timeout time.Duration
	stream  *stream.Channel
	then    func(Result) task.Task
	now     func() time.Time
	logger  *slog.Logger
	metrics *metric.Metrics

	id      atomic.Int64
	answer  chan task.EventTask
	state   atomic.Int32
	invoked atomic.Bool
}

// New creates a command for call on cc, transmitting through sender.
func New(cc *connection.Context, sender task.Sender, call task.CallTask, opts ...Option) *Command {
	c := &Command{
		cc:      cc,
		sender:  sender,
		call:    call,
		now:     time.Now,
		logger:  cc.Logger(),
		metrics: cc.Metrics(),
		answer:  make(chan task.EventTask, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if s, ok := call.(Streamer); c.stream == nil && ok {
		c.stream = stream.New(s.StreamSpec())
	}
	return c
}

// State returns the current state.
func (c *Command) State() State { return State(c.state.Load()) }

// RequestID returns the id assigned by Invoke. It is safe to call while Invoke
// runs on another goroutine.
func (c *Command) RequestID() task.RequestID { return task.RequestID(c.id.Load()) }

// Call returns the wrapped call.
func (c *Command) Call() task.CallTask { return c.call }

// Stream returns the stream of a streaming command, or nil. It is available before
// Invoke so consumers can subscribe while the command waits.
func (c *Command) Stream() *stream.Channel { return c.stream }

// Description names the call and its request id.
func (c *Command) Description() string {
	return fmt.Sprintf("%s#%s", c.call.Name(), c.RequestID())
}

// Invoke sends the call and blocks until the answer arrives, the timeout passes,
// ctx is done, or the connection closes. Exactly one of these outcomes is reported
// even when they race. Transmission errors are returned unchanged.
func (c *Command) Invoke(ctx context.Context) (Result, error) {
	if !c.invoked.CompareAndSwap(false, true) {
		return Result{State: c.State(), RequestID: c.RequestID()}, ErrAlreadyInvoked
	}

	if !c.call.HasRequestID() {
		return c.fireAndForget(ctx)
	}

	id := c.cc.NextRequestID()
	c.id.Store(int64(id))
	c.call.SetRequestID(id)
	if err := c.cc.Register(id, c); err != nil {
		return c.fail(0, err), err
	}
	c.state.Store(int32(Registered))

	c.logger.Debug("command begin",
		"call", c.call.Name(), "request_id", int64(c.RequestID()), "timeout", c.timeout)

	if err := c.call.Transmit(ctx, c.sender); err != nil {
		c.cc.Unregister(c.RequestID())
		c.metrics.RecordTransmitError(c.call.Name())
		return c.fail(0, err), err
	}

	return c.wait(ctx, c.now())
}

func (c *Command) fireAndForget(ctx context.Context) (Result, error) {
	c.call.SetRequestID(task.NoRequestID)
	if c.stream != nil {
		c.stream.Seal()
	}
	if err := c.call.Transmit(ctx, c.sender); err != nil {
		c.metrics.RecordTransmitError(c.call.Name())
		return c.fail(0, err), err
	}
	c.state.Store(int32(Completed))
	c.metrics.RecordCommand(c.call.Name(), Completed.String(), 0)
	return Result{State: Completed, RequestID: task.NoRequestID, Stream: c.stream}, nil
}

func (c *Command) wait(ctx context.Context, begin time.Time) (Result, error) {
	var timer *time.Timer
	var expired <-chan time.Time

	for {
		if c.timeout > 0 {
			remaining := c.timeout - c.elapsed(begin)
			if remaining <= 0 {
				if c.cc.Unregister(c.RequestID()) {
					elapsed := c.elapsed(begin)
					c.finish(TimedOut, elapsed)
					return c.result(TimedOut, nil, elapsed), fmt.Errorf("%w: %s after %s",
						ErrTimeout, c.Description(), c.timeout)
				}
				return c.complete(<-c.answer, begin), nil
			}
			if timer == nil {
				timer = time.NewTimer(remaining)
				defer timer.Stop()
				expired = timer.C
			} else {
				timer.Reset(remaining)
			}
		}

		select {
		case ev := <-c.answer:
			return c.complete(ev, begin), nil
		case <-expired:
			// Recompute against the clock; the timer alone never decides.
		case <-ctx.Done():
			if c.cc.Unregister(c.RequestID()) {
				return c.fail(c.elapsed(begin), ctx.Err()), ctx.Err()
			}
			return c.complete(<-c.answer, begin), nil
		case <-c.cc.Done():
			if c.cc.Unregister(c.RequestID()) {
				err := errs.WrapTransient(errs.ErrConnectionClosed, "Command", "Invoke", "await answer")
				return c.fail(c.elapsed(begin), err), err
			}
			return c.complete(<-c.answer, begin), nil
		}
	}
}

// elapsed never goes negative: a clock that stepped backwards reads as no time
// having passed.
func (c *Command) elapsed(begin time.Time) time.Duration {
	d := c.now().Sub(begin)
	if d < 0 {
		return 0
	}
	return d
}

func (c *Command) complete(ev task.EventTask, begin time.Time) Result {
	elapsed := c.elapsed(begin)
	c.finish(Completed, elapsed)
	return c.result(Completed, ev, elapsed)
}

func (c *Command) fail(elapsed time.Duration, err error) Result {
	c.logger.Debug("command failed",
		"call", c.call.Name(), "request_id", int64(c.RequestID()), "error", err)
	c.finish(Failed, elapsed)
	return c.result(Failed, nil, elapsed)
}

func (c *Command) finish(s State, elapsed time.Duration) {
	c.state.Store(int32(s))
	if c.stream != nil {
		c.stream.Seal()
	}
	c.metrics.RecordCommand(c.call.Name(), s.String(), elapsed)
	c.logger.Debug("command end",
		"call", c.call.Name(), "request_id", int64(c.RequestID()), "state", s.String(), "elapsed", elapsed)
}

func (c *Command) result(s State, ev task.EventTask, elapsed time.Duration) Result {
	return Result{State: s, RequestID: c.RequestID(), Event: ev, Stream: c.stream, Elapsed: elapsed}
}

// Deliver hands an event correlated with this command's request id to the waiter.
// A single answer, or a stream's terminal event, completes the command only if it
// still owns the pending entry; otherwise the command already finished and the
// event is dropped.
func (c *Command) Deliver(ev task.EventTask) {
	if c.stream != nil && !c.stream.Spec().IsTerminal(ev.Kind()) {
		if !c.stream.Append(ev) {
			c.dropLate(ev)
		}
		return
	}

	if !c.cc.Unregister(c.RequestID()) {
		c.dropLate(ev)
		return
	}
	if c.stream != nil {
		c.stream.Terminate(ev)
	}
	c.answer <- ev
}

func (c *Command) dropLate(ev task.EventTask) {
	c.logger.Debug("stray event dropped",
		"kind", ev.Kind(), "request_id", int64(c.RequestID()), "reason", errs.ErrStrayEvent)
	c.metrics.RecordStray(string(ev.Kind()))
}

// Perform invokes the command as a step of a task chain and continues with the
// task built by Then.
func (c *Command) Perform(ctx context.Context) (task.Task, error) {
	res, err := c.Invoke(ctx)
	if err != nil {
		return nil, err
	}
	if c.then == nil {
		return nil, nil
	}
	return c.then(res), nil
}

var (
	_ task.Task         = (*Command)(nil)
	_ connection.Waiter = (*Command)(nil)
)
