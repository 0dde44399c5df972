// Package callbridge turns an asynchronous, message-oriented brokerage API into
// synchronous, timeout-bounded calls.
//
// The remote endpoint accepts calls and answers with a stream of events. Answers
// carry the request id of the call they belong to; notices that belong to no
// request carry the broadcast id -1. callbridge assigns the ids, remembers which
// caller waits on which id, and routes every incoming event to that caller or to
// the subscribers of its kind.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            Session                  │  Call, Send, Subscribe
//	│   (receive loop, codec, journal)    │  Run / Close
//	└─────────────────────────────────────┘
//	           ↓ invokes
//	┌─────────────────────────────────────┐
//	│            Command                  │  Register, transmit,
//	│   (one call, one answer or stream)  │  wait with timeout
//	└─────────────────────────────────────┘
//	           ↓ correlates through
//	┌─────────────────────────────────────┐
//	│       Connection Context            │  Request ids, pending
//	│  (pending table, broadcast pool)    │  waiters, subscribers
//	└─────────────────────────────────────┘
//	           ↓ frames over
//	┌─────────────────────────────────────┐
//	│           Transport                 │  memory, NATS,
//	│     (framed, paced connection)      │  WebSocket
//	└─────────────────────────────────────┘
//
// # Packages
//
// Core:
//   - task: calls, events, request ids and task chains
//   - connection: the per-connection correlation context
//   - command: blocking invocation of one call
//   - stream: multi-event results with terminal detection
//   - session: ties a transport, a codec and a connection context together
//
// Wire and transport:
//   - wire: envelopes, JSON and CBOR codecs, the event registry
//   - transport: the framed connection interface and outbound pacing
//   - transport/memconn: in-process pipes
//   - transport/natsconn: NATS subjects per connection, JetStream journal
//   - transport/wsconn: WebSocket client and server ends
//
// Infrastructure:
//   - config: layered JSON/YAML configuration with environment overrides
//   - errors: classified errors (transient, invalid, fatal)
//   - metric: Prometheus registry and scrape server
//   - natsclient: NATS connection management with circuit breaker
//   - pkg/retry: exponential backoff
//   - pkg/worker: bounded worker pool
//
// Catalog:
//   - ib: representative brokerage calls and events, plus a simulated remote
//
// # Usage
//
//	local, remote := memconn.Pipe(0)
//	go (&ib.Simulator{Conn: remote}).Run(ctx)
//
//	sess := session.New(local, ib.Decoder(), session.WithDefaultTimeout(10*time.Second))
//	go sess.Run(ctx)
//	defer sess.Close()
//
//	res, err := sess.Call(ctx, &ib.ReqMatchingSymbols{Pattern: "IBM"})
//
// # Testing
//
// Unit tests use testify and in-process pipes. Tests that need a NATS server are
// behind the integration build tag and start one with testcontainers:
//
//	go test -tags=integration ./...
//
// # Binary
//
// cmd/callbridge runs a demo against the configured transport, or with -remote
// serves the simulated remote:
//
//	callbridge -simulate
//	callbridge -config=callbridge.yaml -remote
package callbridge
