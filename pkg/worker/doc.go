// Package worker provides a generic worker pool over a bounded queue.
//
// Submit never blocks: a full queue returns ErrQueueFull and counts the item as
// dropped. Processors that panic are recovered and reported as failures through
// the optional error handler, so one bad subscriber cannot take down the pool.
//
//	pool := worker.NewPool(1, 256, func(ctx context.Context, ev task.EventTask) error {
//	    return deliver(ctx, ev)
//	})
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Statistics are always tracked with atomics; Prometheus metrics are added with
// WithMetricsRegistry.
package worker
