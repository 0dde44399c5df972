// Package connection holds the per-connection correlation state: the request id
// counter, the table of pending requests, and the broadcast subscribers.
package connection

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/metric"
	"github.com/c360/callbridge/pkg/worker"
	"github.com/c360/callbridge/task"
)

// Waiter receives the events correlated with one registered request.
type Waiter interface {
	Deliver(ev task.EventTask)
}

// Handler consumes broadcast events of one kind.
type Handler func(ctx context.Context, ev task.EventTask)

// Route reports what Dispatch did with an event.
type Route int

const (
	// RouteDelivered means a pending request received the event.
	RouteDelivered Route = iota
	// RouteStray means the event's id matched no pending request and was dropped.
	RouteStray
	// RouteBroadcast means the uncorrelated event was queued for its subscribers.
	RouteBroadcast
	// RouteDropped means the event was uncorrelated and could not be queued.
	RouteDropped
)

func (r Route) String() string {
	switch r {
	case RouteDelivered:
		return "delivered"
	case RouteStray:
		return "stray"
	case RouteBroadcast:
		return "broadcast"
	case RouteDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

type broadcast struct {
	ev       task.EventTask
	handlers []Handler
}

// Context is the correlation state of one logical connection. It is created when
// the connection is established and closed with it.
type Context struct {
	id     string
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[task.RequestID]Waiter
	closed  bool
	done    chan struct{}

	subsMu sync.RWMutex
	subs   map[task.EventKind]map[uint64]Handler
	subSeq uint64

	pool       *worker.Pool[broadcast]
	poolCancel context.CancelFunc
	closeOnce  sync.Once

	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates a connection context and starts its broadcast workers.
func New(opts ...Option) *Context {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Context{
		id:      uuid.NewString(),
		pending: make(map[task.RequestID]Waiter),
		done:    make(chan struct{}),
		subs:    make(map[task.EventKind]map[uint64]Handler),
		logger:  o.logger,
		metrics: o.metrics,
	}
	c.logger = c.logger.With("connection", c.id)
	c.nextID.Store(o.idBase - 1)

	poolOpts := []worker.Option[broadcast]{
		worker.WithErrorHandler(func(b broadcast, err error) {
			c.logger.Error("broadcast handler failed", "kind", b.ev.Kind(), "error", err)
		}),
	}
	if o.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[broadcast](o.registry, "callbridge_broadcast"))
	}
	c.pool = worker.NewPool(o.broadcastWorkers, o.broadcastQueue, c.fanOut, poolOpts...)

	var poolCtx context.Context
	poolCtx, c.poolCancel = context.WithCancel(context.Background())
	// A fresh pool cannot fail to start.
	_ = c.pool.Start(poolCtx)

	return c
}

// ID returns the connection's unique identifier.
func (c *Context) ID() string { return c.id }

// Logger returns the connection-scoped logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Metrics returns the metrics the context records into, possibly nil.
func (c *Context) Metrics() *metric.Metrics { return c.metrics }

// NextRequestID returns a fresh id. Ids are never repeated for the lifetime of the
// context.
func (c *Context) NextRequestID() task.RequestID {
	return task.RequestID(c.nextID.Add(1))
}

// Register records w as the waiter for id. A duplicate id is an invariant
// violation and fails fatally.
func (c *Context) Register(id task.RequestID, w Waiter) error {
	if !id.Valid() {
		return errs.WrapInvalid(fmt.Errorf("%w: request id %d", errs.ErrInvalidData, id),
			"Context", "Register", "validate request id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errs.WrapTransient(errs.ErrConnectionClosed, "Context", "Register", "insert pending entry")
	}
	if _, exists := c.pending[id]; exists {
		return errs.WrapFatal(fmt.Errorf("%w: %d", errs.ErrDuplicateRequestID, id),
			"Context", "Register", "insert pending entry")
	}
	c.pending[id] = w
	c.metrics.PendingAdded()
	return nil
}

// Lookup returns the waiter registered for id without removing it.
func (c *Context) Lookup(id task.RequestID) (Waiter, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.pending[id]
	return w, ok
}

// Unregister removes id and reports whether it was present. When several paths
// race to finish the same request, exactly one of them sees true.
func (c *Context) Unregister(id task.RequestID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	c.metrics.PendingRemoved()
	return true
}

// Pending returns the number of requests awaiting an answer.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Dispatch routes one decoded event. Correlated events go to their waiter or are
// dropped as stray; uncorrelated ones are fanned out to subscribers of their kind.
// Callers must dispatch in wire order.
func (c *Context) Dispatch(ev task.EventTask) Route {
	if id, ok := ev.CorrelationID(); ok {
		w, found := c.Lookup(id)
		if !found {
			c.logger.Debug("stray event dropped",
				"kind", ev.Kind(), "request_id", int64(id), "reason", errs.ErrStrayEvent)
			c.metrics.RecordStray(string(ev.Kind()))
			return RouteStray
		}
		w.Deliver(ev)
		return RouteDelivered
	}

	handlers := c.handlers(ev.Kind())
	if len(handlers) == 0 {
		c.logger.Debug("broadcast event without subscribers", "kind", ev.Kind())
		return RouteBroadcast
	}
	if err := c.pool.Submit(broadcast{ev: ev, handlers: handlers}); err != nil {
		c.logger.Warn("broadcast event dropped", "kind", ev.Kind(), "error", err)
		c.metrics.RecordBroadcastDropped(string(ev.Kind()))
		return RouteDropped
	}
	c.metrics.RecordBroadcast(string(ev.Kind()))
	return RouteBroadcast
}

// Subscribe registers handler for broadcast events of kind. The returned function
// removes the subscription. Handlers run on the broadcast pool; when its queue is
// full (see WithBroadcastQueue) or the context is closed, Dispatch drops the event
// with RouteDropped and counts it in broadcast_dropped_total.
func (c *Context) Subscribe(kind task.EventKind, handler Handler) (cancel func()) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.subSeq++
	key := c.subSeq
	if c.subs[kind] == nil {
		c.subs[kind] = make(map[uint64]Handler)
	}
	c.subs[kind][key] = handler

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		delete(c.subs[kind], key)
		if len(c.subs[kind]) == 0 {
			delete(c.subs, kind)
		}
	}
}

func (c *Context) handlers(kind task.EventKind) []Handler {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	byKey := c.subs[kind]
	if len(byKey) == 0 {
		return nil
	}
	handlers := make([]Handler, 0, len(byKey))
	for _, key := range slices.Sorted(maps.Keys(byKey)) {
		handlers = append(handlers, byKey[key])
	}
	return handlers
}

func (c *Context) fanOut(ctx context.Context, b broadcast) error {
	for _, h := range b.handlers {
		h(ctx, b.ev)
	}
	return nil
}

// Done is closed when the context is closed.
func (c *Context) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the context closed, wakes every waiting command, and stops the
// broadcast workers after queued events are handed out. Pending entries are left
// for their commands to remove.
func (c *Context) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := len(c.pending)
		close(c.done)
		c.mu.Unlock()

		err = c.pool.Stop(5 * time.Second)
		c.poolCancel()
		c.logger.Debug("connection context closed", "pending", pending)
	})
	return err
}
