package task

import (
	"context"
	"strconv"
)

// RequestID correlates a call with the events that answer it.
type RequestID int64

// NoRequestID marks a call or event without a correlated id. Allocation starts
// above it, so it is never handed out.
const NoRequestID RequestID = 0

// Valid reports whether id was allocated.
func (id RequestID) Valid() bool { return id > NoRequestID }

func (id RequestID) String() string {
	if !id.Valid() {
		return "none"
	}
	return strconv.FormatInt(int64(id), 10)
}

// Sender is the transport handle a call transmits itself through. The request id
// travels in the envelope slot the remote protocol reads it from.
type Sender interface {
	SendCall(ctx context.Context, name string, id RequestID, body any) error
}

// CallTask is an outbound request.
type CallTask interface {
	// Name identifies the call type on the wire.
	Name() string
	// HasRequestID is a per-call-type constant: false for fire-and-forget calls whose
	// answers, if any, are not correlated by id.
	HasRequestID() bool
	RequestID() RequestID
	SetRequestID(id RequestID)
	// Transmit sends the call with its current request id.
	Transmit(ctx context.Context, s Sender) error
}

// CallBase stores the request id for embedding call types.
type CallBase struct {
	id RequestID
}

// RequestID returns the assigned id, or NoRequestID.
func (b *CallBase) RequestID() RequestID { return b.id }

// SetRequestID assigns the id the call is transmitted with.
func (b *CallBase) SetRequestID(id RequestID) { b.id = id }

// SendCall returns a task that transmits call without awaiting an answer.
func SendCall(s Sender, call CallTask) Task {
	return Func(func(ctx context.Context) (Task, error) {
		return nil, call.Transmit(ctx, s)
	})
}
