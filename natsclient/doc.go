// Package natsclient wraps nats.go with connection lifecycle tracking and a
// circuit breaker.
//
// After a configurable number of consecutive failures (default 5) the circuit
// opens and Connect, Publish and the JetStream helpers fail fast with
// ErrCircuitOpen. The circuit half-opens after a backoff that doubles each time it
// trips, capped by WithMaxBackoff. A successful connect or reconnect resets it.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry.CoreMetrics()),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// Close unsubscribes and drains, bounded by the drain timeout and the context
// deadline, whichever is shorter.
//
// NewTestClient starts a disposable NATS server with testcontainers for tests that
// run under the integration build tag.
package natsclient
