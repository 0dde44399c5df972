package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/callbridge/connection"
	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/pkg/retry"
	"github.com/c360/callbridge/stream"
	"github.com/c360/callbridge/task"
)

type lookupCall struct {
	task.CallBase
	pattern string
	noID    bool
}

func (*lookupCall) Name() string         { return "Lookup" }
func (c *lookupCall) HasRequestID() bool { return !c.noID }
func (c *lookupCall) Transmit(ctx context.Context, s task.Sender) error {
	return s.SendCall(ctx, c.Name(), c.RequestID(), c.pattern)
}

type match struct {
	task.EventBase
	symbol string
}

type remoteError struct {
	task.EventBase
	msg string
}

func (e *remoteError) Failure() error { return errors.New(e.msg) }

func matchFor(id task.RequestID, symbol string) *match {
	return &match{EventBase: task.Correlated("Match", id), symbol: symbol}
}

func row(id task.RequestID, symbol string) *match {
	return &match{EventBase: task.Correlated("Row", id), symbol: symbol}
}

func rowsEnd(id task.RequestID) *match {
	return &match{EventBase: task.Correlated("RowsEnd", id)}
}

var rowsSpec = stream.Spec{Terminals: []task.EventKind{"RowsEnd", "Error"}}

// remote answers sent calls by dispatching events back on the context.
type remote struct {
	cc      *connection.Context
	err     error
	respond func(id task.RequestID) []task.EventTask
	delay   time.Duration

	mu   sync.Mutex
	sent []task.RequestID
	wg   sync.WaitGroup
}

func (r *remote) SendCall(_ context.Context, _ string, id task.RequestID, _ any) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.sent = append(r.sent, id)
	r.mu.Unlock()

	if r.respond == nil {
		return nil
	}
	events := r.respond(id)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		time.Sleep(r.delay)
		for _, ev := range events {
			r.cc.Dispatch(ev)
		}
	}()
	return nil
}

func (r *remote) sentIDs() []task.RequestID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]task.RequestID(nil), r.sent...)
}

func setup(t *testing.T) (*connection.Context, *metric.Metrics) {
	t.Helper()
	m := metric.NewMetricsRegistry().CoreMetrics()
	cc := connection.New(connection.WithMetrics(m))
	t.Cleanup(func() { _ = cc.Close() })
	return cc, m
}

func TestInvoke_CompletesWithAnswer(t *testing.T) {
	cc, m := setup(t)
	r := &remote{cc: cc, delay: 5 * time.Millisecond, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{matchFor(id, "AAPL")}
	}}

	cmd := New(cc, r, &lookupCall{pattern: "AAP"}, WithTimeout(time.Second))
	assert.Equal(t, Created, cmd.State())

	start := time.Now()
	res, err := cmd.Invoke(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, Completed, cmd.State())
	require.IsType(t, &match{}, res.Event)
	assert.Equal(t, "AAPL", res.Event.(*match).symbol)
	assert.Equal(t, cmd.RequestID(), res.RequestID)
	assert.Nil(t, res.Failure())
	assert.Equal(t, 0, cc.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("Lookup", "completed")))
}

func TestInvoke_TimesOutAndDropsLateEvent(t *testing.T) {
	cc, m := setup(t)
	r := &remote{cc: cc}

	cmd := New(cc, r, &lookupCall{}, WithTimeout(50*time.Millisecond))
	start := time.Now()
	res, err := cmd.Invoke(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, errs.IsTransient(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, TimedOut, res.State)
	assert.Equal(t, 0, cc.Pending())

	assert.Equal(t, connection.RouteStray, cc.Dispatch(matchFor(res.RequestID, "late")))
	assert.Equal(t, TimedOut, cmd.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StrayEvents.WithLabelValues("Match")))
}

func TestInvoke_FireAndForget(t *testing.T) {
	cc, _ := setup(t)
	r := &remote{cc: cc}
	call := &lookupCall{noID: true}

	res, err := New(cc, r, call).Invoke(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, task.NoRequestID, res.RequestID)
	assert.Nil(t, res.Event)
	assert.Equal(t, []task.RequestID{task.NoRequestID}, r.sentIDs())
	assert.Equal(t, 0, cc.Pending())
}

func TestInvoke_TransmitErrorUnchanged(t *testing.T) {
	cc, m := setup(t)
	wireErr := errors.New("socket closed")
	r := &remote{cc: cc, err: wireErr}

	res, err := New(cc, r, &lookupCall{}, WithTimeout(time.Second)).Invoke(context.Background())
	assert.Same(t, wireErr, err)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, 0, cc.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransmitErrors.WithLabelValues("Lookup")))
}

func TestInvoke_Twice(t *testing.T) {
	cc, _ := setup(t)
	cmd := New(cc, &remote{cc: cc}, &lookupCall{noID: true})
	_, err := cmd.Invoke(context.Background())
	require.NoError(t, err)

	_, err = cmd.Invoke(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyInvoked)
	assert.True(t, errs.IsInvalid(err))
}

func TestInvoke_Cancelled(t *testing.T) {
	cc, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res, err := New(cc, &remote{cc: cc}, &lookupCall{}).Invoke(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, 0, cc.Pending())
}

func TestInvoke_ConnectionClosed(t *testing.T) {
	cc, _ := setup(t)
	time.AfterFunc(20*time.Millisecond, func() { _ = cc.Close() })

	res, err := New(cc, &remote{cc: cc}, &lookupCall{}).Invoke(context.Background())
	assert.ErrorIs(t, err, errs.ErrConnectionClosed)
	assert.Equal(t, Failed, res.State)

	_, err = New(cc, &remote{cc: cc}, &lookupCall{}).Invoke(context.Background())
	assert.ErrorIs(t, err, errs.ErrConnectionClosed, "register refuses after close")
}

func TestInvoke_WaitsIndefinitelyWithoutTimeout(t *testing.T) {
	cc, _ := setup(t)
	r := &remote{cc: cc, delay: 80 * time.Millisecond, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{matchFor(id, "slow")}
	}}

	res, err := New(cc, r, &lookupCall{}).Invoke(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
}

func TestInvoke_BackwardClockDoesNotTimeOut(t *testing.T) {
	cc, _ := setup(t)

	base := time.Now()
	var calls atomic.Int64
	clock := func() time.Time {
		// First read is the begin time; later reads jump an hour into the past.
		if calls.Add(1) == 1 {
			return base
		}
		return base.Add(-time.Hour)
	}

	r := &remote{cc: cc, delay: 60 * time.Millisecond, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{matchFor(id, "ok")}
	}}
	res, err := New(cc, r, &lookupCall{}, WithTimeout(20*time.Millisecond), WithClock(clock)).
		Invoke(context.Background())

	require.NoError(t, err, "a backward clock counts as no elapsed time")
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, time.Duration(0), res.Elapsed)
}

func TestInvoke_RaceBetweenDeliveryAndTimeout(t *testing.T) {
	cc, _ := setup(t)

	for i := range 200 {
		delay := time.Duration(i%5) * time.Millisecond
		r := &remote{cc: cc, delay: delay, respond: func(id task.RequestID) []task.EventTask {
			return []task.EventTask{matchFor(id, "x")}
		}}
		cmd := New(cc, r, &lookupCall{}, WithTimeout(2*time.Millisecond))
		res, err := cmd.Invoke(context.Background())

		switch res.State {
		case Completed:
			require.NoError(t, err)
			require.NotNil(t, res.Event)
		case TimedOut:
			require.ErrorIs(t, err, ErrTimeout)
			require.Nil(t, res.Event)
		default:
			t.Fatalf("iteration %d: unexpected state %s", i, res.State)
		}
		r.wg.Wait()
		require.Equal(t, res.State, cmd.State(), "state never changes after the waiter returns")
		require.Equal(t, 0, cc.Pending())
	}
}

func TestInvoke_StreamNEventsThenTerminal(t *testing.T) {
	cc, _ := setup(t)
	r := &remote{cc: cc, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{row(id, "a"), row(id, "b"), row(id, "c"), rowsEnd(id)}
	}}

	cmd := New(cc, r, &lookupCall{}, WithStream(rowsSpec), WithTimeout(time.Second))
	res, err := cmd.Invoke(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Completed, res.State)
	require.NotNil(t, res.Stream)
	assert.True(t, res.Stream.Terminated())
	assert.Equal(t, 3, res.Stream.Len())

	rows := stream.Items[*match](res.Stream)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{rows[0].symbol, rows[1].symbol, rows[2].symbol})
	assert.Equal(t, task.EventKind("RowsEnd"), res.Event.Kind())
}

type rowsCall struct{ lookupCall }

func (*rowsCall) StreamSpec() stream.Spec { return rowsSpec }

func TestNew_StreamerCallGetsStream(t *testing.T) {
	cc, _ := setup(t)
	r := &remote{cc: cc, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{row(id, "a"), rowsEnd(id)}
	}}

	cmd := New(cc, r, &rowsCall{}, WithTimeout(time.Second))
	require.NotNil(t, cmd.Stream())

	res, err := cmd.Invoke(context.Background())
	require.NoError(t, err)
	assert.Same(t, cmd.Stream(), res.Stream)
	assert.Equal(t, 1, res.Stream.Len())
	assert.True(t, res.Stream.Terminated())
}

func TestInvoke_StreamNotCompletedByIntermediate(t *testing.T) {
	cc, _ := setup(t)
	var id atomic.Int64
	r := &remote{cc: cc, respond: func(rid task.RequestID) []task.EventTask {
		id.Store(int64(rid))
		return []task.EventTask{row(rid, "a")}
	}}

	cmd := New(cc, r, &lookupCall{}, WithStream(rowsSpec))
	done := make(chan Result, 1)
	go func() {
		res, _ := cmd.Invoke(context.Background())
		done <- res
	}()

	require.Eventually(t, func() bool { return cmd.Stream().Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, Registered, cmd.State())

	cc.Dispatch(rowsEnd(task.RequestID(id.Load())))
	select {
	case res := <-done:
		assert.Equal(t, Completed, res.State)
	case <-time.After(time.Second):
		t.Fatal("terminal event did not complete the command")
	}
}

func TestInvoke_StreamTimeoutLeavesPartial(t *testing.T) {
	cc, _ := setup(t)
	r := &remote{cc: cc, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{row(id, "a"), row(id, "b")}
	}}

	res, err := New(cc, r, &lookupCall{}, WithStream(rowsSpec), WithTimeout(50*time.Millisecond)).
		Invoke(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	r.wg.Wait()

	assert.False(t, res.Stream.Terminated())
	events, err := res.Stream.Drain(context.Background())
	assert.ErrorIs(t, err, stream.ErrIncomplete)
	assert.Len(t, events, 2)

	assert.Equal(t, connection.RouteStray, cc.Dispatch(row(res.RequestID, "late")))
	assert.Equal(t, 2, res.Stream.Len())
}

func TestInvoke_StreamRemoteError(t *testing.T) {
	cc, _ := setup(t)
	r := &remote{cc: cc, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{&remoteError{EventBase: task.Correlated("Error", id), msg: "no permissions"}}
	}}

	res, err := New(cc, r, &lookupCall{}, WithStream(rowsSpec), WithTimeout(time.Second)).
		Invoke(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.EqualError(t, res.Failure(), "no permissions")
	assert.True(t, res.Stream.Terminated())
}

func TestCommand_PerformThen(t *testing.T) {
	cc, _ := setup(t)
	r := &remote{cc: cc, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{matchFor(id, "MSFT")}
	}}

	var got string
	first := New(cc, r, &lookupCall{}, WithTimeout(time.Second), Then(func(res Result) task.Task {
		got = res.Event.(*match).symbol
		return task.SendCall(r, &lookupCall{noID: true})
	}))

	require.NoError(t, task.Run(context.Background(), first))
	assert.Equal(t, "MSFT", got)
	assert.Len(t, r.sentIDs(), 2)
	assert.Equal(t, fmt.Sprintf("Lookup#%d", first.RequestID()), first.Description())
}

func TestInvokeWithRetry(t *testing.T) {
	cc, m := setup(t)
	var attempts atomic.Int32
	r := &remote{cc: cc, respond: func(id task.RequestID) []task.EventTask {
		if attempts.Add(1) < 3 {
			return nil
		}
		return []task.EventTask{matchFor(id, "third")}
	}}

	cfg := retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	res, err := InvokeWithRetry(context.Background(), func() *Command {
		return New(cc, r, &lookupCall{}, WithTimeout(30*time.Millisecond))
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, "third", res.Event.(*match).symbol)

	ids := r.sentIDs()
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1], "each attempt uses a fresh id")
	assert.NotEqual(t, ids[1], ids[2])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries.WithLabelValues("Lookup")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("Lookup", "timed_out")))
}

func TestInvokeWithRetry_TransmitErrorNotRetried(t *testing.T) {
	cc, _ := setup(t)
	builds := 0
	r := &remote{cc: cc, err: errors.New("broken pipe")}

	_, err := InvokeWithRetry(context.Background(), func() *Command {
		builds++
		return New(cc, r, &lookupCall{}, WithTimeout(time.Second))
	}, retry.Quick())

	assert.EqualError(t, err, "broken pipe")
	assert.Equal(t, 1, builds)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "timed_out", TimedOut.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, Failed.Terminal())
	assert.False(t, Registered.Terminal())
}

func TestRequestID_ReadWhileInvoking(t *testing.T) {
	cc, _ := setup(t)
	r := &remote{cc: cc, delay: 20 * time.Millisecond, respond: func(id task.RequestID) []task.EventTask {
		return []task.EventTask{matchFor(id, "IBM")}
	}}
	cmd := New(cc, r, &lookupCall{pattern: "IB"}, WithTimeout(time.Second))

	done := make(chan error, 1)
	go func() {
		_, err := cmd.Invoke(context.Background())
		done <- err
	}()

	var seen task.RequestID
	for seen == task.NoRequestID {
		seen = cmd.RequestID()
		_ = cmd.Description()
	}
	require.NoError(t, <-done)
	assert.Equal(t, seen, cmd.RequestID())
	assert.Equal(t, []task.RequestID{seen}, r.sentIDs())
}
