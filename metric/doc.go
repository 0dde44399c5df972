// Package metric provides Prometheus metrics for the correlation engine and an HTTP
// server exposing them.
//
// MetricsRegistry owns a private Prometheus registry holding the core Metrics
// (command outcomes, invoke latency, pending requests, stray and broadcast events,
// decode and transmit errors, NATS health) plus the Go runtime collectors.
// Components with their own metrics, such as the worker pool, register them through
// the MetricsRegistrar methods:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9090", "/metrics", registry)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(context.Background())
//
//	cc := connection.New(connection.WithMetrics(registry.CoreMetrics()))
//
// A nil *Metrics records nothing, so components accept metrics as an optional
// dependency.
package metric
