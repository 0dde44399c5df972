package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/task"
)

type event struct {
	task.EventBase
	n int
}

func answer(id task.RequestID, n int) *event {
	return &event{EventBase: task.Correlated("Answer", id), n: n}
}

func notice(n int) *event {
	return &event{EventBase: task.Broadcast("Notice"), n: n}
}

type recorder struct {
	mu     sync.Mutex
	events []task.EventTask
}

func (r *recorder) Deliver(ev task.EventTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	c := New(opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestContext_NextRequestIDUnique(t *testing.T) {
	c := newContext(t)

	const goroutines, per = 8, 500
	ids := make(chan task.RequestID, goroutines*per)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				ids <- c.NextRequestID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[task.RequestID]bool)
	for id := range ids {
		assert.True(t, id.Valid())
		assert.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*per)
}

func TestContext_IDBase(t *testing.T) {
	c := newContext(t, WithIDBase(1000))
	assert.Equal(t, task.RequestID(1000), c.NextRequestID())
	assert.Equal(t, task.RequestID(1001), c.NextRequestID())

	c = newContext(t, WithIDBase(-5))
	assert.Equal(t, task.RequestID(1), c.NextRequestID())
}

func TestContext_RegisterLookupUnregister(t *testing.T) {
	c := newContext(t)
	id := c.NextRequestID()
	w := &recorder{}

	require.NoError(t, c.Register(id, w))
	assert.Equal(t, 1, c.Pending())

	got, ok := c.Lookup(id)
	require.True(t, ok)
	assert.Same(t, w, got)
	assert.Equal(t, 1, c.Pending(), "lookup is non-destructive")

	assert.True(t, c.Unregister(id))
	assert.False(t, c.Unregister(id), "second removal reports absence")
	assert.Equal(t, 0, c.Pending())

	_, ok = c.Lookup(id)
	assert.False(t, ok)
}

func TestContext_RegisterDuplicateIsFatal(t *testing.T) {
	c := newContext(t)
	id := c.NextRequestID()
	require.NoError(t, c.Register(id, &recorder{}))

	err := c.Register(id, &recorder{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrDuplicateRequestID)
	assert.True(t, errs.IsFatal(err))
}

func TestContext_RegisterInvalidID(t *testing.T) {
	c := newContext(t)
	err := c.Register(task.NoRequestID, &recorder{})
	assert.True(t, errs.IsInvalid(err))
}

func TestContext_UnregisterSingleWinner(t *testing.T) {
	c := newContext(t)

	for range 200 {
		id := c.NextRequestID()
		require.NoError(t, c.Register(id, &recorder{}))

		var winners atomic.Int32
		var wg sync.WaitGroup
		for range 3 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if c.Unregister(id) {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), winners.Load())
	}
}

func TestContext_DispatchCorrelated(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m := registry.CoreMetrics()
	c := newContext(t, WithMetrics(m))

	id := c.NextRequestID()
	w := &recorder{}
	require.NoError(t, c.Register(id, w))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingRequests))

	assert.Equal(t, RouteDelivered, c.Dispatch(answer(id, 1)))
	assert.Equal(t, 1, w.count())

	c.Unregister(id)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PendingRequests))

	assert.Equal(t, RouteStray, c.Dispatch(answer(id, 2)))
	assert.Equal(t, 1, w.count(), "stray events never reach a waiter")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StrayEvents.WithLabelValues("Answer")))
}

func TestContext_DispatchBroadcastInOrder(t *testing.T) {
	c := newContext(t)

	var mu sync.Mutex
	var first, second []int
	done := make(chan struct{})
	cancelFirst := c.Subscribe("Notice", func(_ context.Context, ev task.EventTask) {
		mu.Lock()
		defer mu.Unlock()
		first = append(first, ev.(*event).n)
	})
	defer cancelFirst()
	c.Subscribe("Notice", func(_ context.Context, ev task.EventTask) {
		mu.Lock()
		defer mu.Unlock()
		second = append(second, ev.(*event).n)
		if len(second) == 20 {
			close(done)
		}
	})

	for i := range 20 {
		assert.Equal(t, RouteBroadcast, c.Dispatch(notice(i)))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
}

func TestContext_BroadcastQueueFullCountsDrops(t *testing.T) {
	m := metric.NewMetricsRegistry().CoreMetrics()
	c := newContext(t, WithMetrics(m), WithBroadcastWorkers(1), WithBroadcastQueue(1))

	release := make(chan struct{})
	c.Subscribe("Notice", func(context.Context, task.EventTask) { <-release })

	dropped := 0
	for i := range 10 {
		if c.Dispatch(notice(i)) == RouteDropped {
			dropped++
		}
	}
	close(release)

	require.Positive(t, dropped, "a one-slot queue behind a blocked worker must overflow")
	assert.Equal(t, float64(dropped), testutil.ToFloat64(m.BroadcastDropped.WithLabelValues("Notice")))
}

func TestContext_SubscribeCancel(t *testing.T) {
	c := newContext(t)

	var calls atomic.Int32
	cancel := c.Subscribe("Notice", func(context.Context, task.EventTask) { calls.Add(1) })
	cancel()

	c.Dispatch(notice(1))
	require.NoError(t, c.Close())
	assert.Equal(t, int32(0), calls.Load())
}

func TestContext_BroadcastIgnoresCorrelationTable(t *testing.T) {
	c := newContext(t)
	w := &recorder{}
	require.NoError(t, c.Register(c.NextRequestID(), w))

	c.Dispatch(notice(1))
	require.NoError(t, c.Close())
	assert.Equal(t, 0, w.count())
}

func TestContext_Close(t *testing.T) {
	c := New()
	c.Subscribe("Notice", func(context.Context, task.EventTask) {})
	id := c.NextRequestID()
	require.NoError(t, c.Register(id, &recorder{}))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())

	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}

	err := c.Register(c.NextRequestID(), &recorder{})
	assert.ErrorIs(t, err, errs.ErrConnectionClosed)

	assert.Equal(t, 1, c.Pending(), "entries are removed by their owners")
	assert.True(t, c.Unregister(id))

	assert.Equal(t, RouteDropped, c.Dispatch(notice(1)), "fan-out stopped")
}

func TestContext_IDAndString(t *testing.T) {
	a, b := newContext(t), newContext(t)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "stray", RouteStray.String())
	assert.Equal(t, "unknown", Route(42).String())
}
