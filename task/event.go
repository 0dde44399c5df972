package task

import "context"

// EventKind names one event shape. The set is closed by the decoder registry:
// frames of any other kind are rejected before they become events.
type EventKind string

// EventTask is an inbound event decoded from the connection.
type EventTask interface {
	Task
	Kind() EventKind
	// CorrelationID returns the request id embedded in the payload. Broadcast
	// events report false and are routed by kind alone.
	CorrelationID() (RequestID, bool)
}

// Failure is implemented by events that report a remote error for a request.
type Failure interface {
	Failure() error
}

// EventBase carries kind and correlation for embedding event types.
type EventBase struct {
	kind EventKind
	id   RequestID
}

// Correlated builds the base of an event answering request id. Ids that were never
// allocated (the remote uses -1 for connection-level notices) yield a broadcast base.
func Correlated(kind EventKind, id RequestID) EventBase {
	return EventBase{kind: kind, id: id}
}

// Broadcast builds the base of an event without a correlation id.
func Broadcast(kind EventKind) EventBase {
	return EventBase{kind: kind, id: NoRequestID}
}

// Kind returns the event kind.
func (b EventBase) Kind() EventKind { return b.kind }

// CorrelationID returns the embedded request id, if any.
func (b EventBase) CorrelationID() (RequestID, bool) {
	return b.id, b.id.Valid()
}

// Perform ends the chain; event types with follow-up work override it.
func (b EventBase) Perform(context.Context) (Task, error) { return nil, nil }
