package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callbridge"

// Metrics contains the correlation engine and transport metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Command metrics
	CommandsTotal  *prometheus.CounterVec
	InvokeDuration *prometheus.HistogramVec
	TransmitErrors *prometheus.CounterVec
	Retries        *prometheus.CounterVec

	// Dispatch metrics
	PendingRequests  prometheus.Gauge
	StrayEvents      *prometheus.CounterVec
	BroadcastEvents  *prometheus.CounterVec
	BroadcastDropped *prometheus.CounterVec
	DecodeErrors     prometheus.Counter

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates an unregistered Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "command",
				Name:      "finished_total",
				Help:      "Commands finished, by call name and final state",
			},
			[]string{"call", "state"},
		),

		InvokeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "command",
				Name:      "invoke_duration_seconds",
				Help:      "Time from transmission to completion or timeout",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"call"},
		),

		TransmitErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "command",
				Name:      "transmit_errors_total",
				Help:      "Calls whose transmission failed",
			},
			[]string{"call"},
		),

		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "command",
				Name:      "retries_total",
				Help:      "Commands re-issued after a timeout",
			},
			[]string{"call"},
		),

		PendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "pending_requests",
				Help:      "Requests registered and awaiting an answer",
			},
		),

		StrayEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "stray_events_total",
				Help:      "Correlated events dropped because no request was pending",
			},
			[]string{"kind"},
		),

		BroadcastEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "broadcast_events_total",
				Help:      "Uncorrelated events fanned out to subscribers",
			},
			[]string{"kind"},
		),

		BroadcastDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "broadcast_dropped_total",
				Help:      "Uncorrelated events dropped because the fan-out queue was full or stopped",
			},
			[]string{"kind"},
		),

		DecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "decode_errors_total",
				Help:      "Inbound frames that could not be decoded",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open)",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CommandsTotal,
		m.InvokeDuration,
		m.TransmitErrors,
		m.Retries,
		m.PendingRequests,
		m.StrayEvents,
		m.BroadcastEvents,
		m.BroadcastDropped,
		m.DecodeErrors,
		m.NATSConnected,
		m.NATSReconnects,
		m.NATSCircuitBreaker,
	}
}

// RecordCommand counts a finished command and observes how long it waited.
func (m *Metrics) RecordCommand(call, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(call, state).Inc()
	m.InvokeDuration.WithLabelValues(call).Observe(elapsed.Seconds())
}

// RecordRetry counts a command re-issued after timing out.
func (m *Metrics) RecordRetry(call string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(call).Inc()
}

// RecordTransmitError counts a failed transmission.
func (m *Metrics) RecordTransmitError(call string) {
	if m == nil {
		return
	}
	m.TransmitErrors.WithLabelValues(call).Inc()
}

// PendingAdded tracks a registration.
func (m *Metrics) PendingAdded() {
	if m == nil {
		return
	}
	m.PendingRequests.Inc()
}

// PendingRemoved tracks a successful unregistration.
func (m *Metrics) PendingRemoved() {
	if m == nil {
		return
	}
	m.PendingRequests.Dec()
}

// RecordStray counts a dropped correlated event.
func (m *Metrics) RecordStray(kind string) {
	if m == nil {
		return
	}
	m.StrayEvents.WithLabelValues(kind).Inc()
}

// RecordBroadcast counts an uncorrelated event handed to fan-out.
func (m *Metrics) RecordBroadcast(kind string) {
	if m == nil {
		return
	}
	m.BroadcastEvents.WithLabelValues(kind).Inc()
}

// RecordBroadcastDropped counts an event no subscriber will see.
func (m *Metrics) RecordBroadcastDropped(kind string) {
	if m == nil {
		return
	}
	m.BroadcastDropped.WithLabelValues(kind).Inc()
}

// RecordDecodeError counts an undecodable frame.
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// RecordNATSStatus updates NATS connection status
func (m *Metrics) RecordNATSStatus(connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (m *Metrics) RecordNATSReconnect() {
	if m == nil {
		return
	}
	m.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (m *Metrics) RecordCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1.0
	}
	m.NATSCircuitBreaker.Set(value)
}
