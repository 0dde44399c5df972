package wire

import (
	"context"
	"fmt"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/task"
)

// Envelope is the unit carried in one frame. ReqID is omitted for uncorrelated
// messages; the remote may also send -1 to mean "no request".
type Envelope struct {
	Type    string `json:"type" cbor:"type"`
	ReqID   *int64 `json:"req_id,omitempty" cbor:"req_id,omitempty"`
	Payload []byte `json:"payload,omitempty" cbor:"payload,omitempty"`
}

// RequestID returns the envelope's id, or task.NoRequestID.
func (e Envelope) RequestID() task.RequestID {
	if e.ReqID == nil {
		return task.NoRequestID
	}
	return task.RequestID(*e.ReqID)
}

// Body unmarshals the payload into v.
func (e Envelope) Body(c Codec, v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := c.Unmarshal(e.Payload, v); err != nil {
		return errs.WrapInvalid(fmt.Errorf("%w: %s payload: %v", errs.ErrParsingFailed, e.Type, err),
			"Envelope", "Body", "unmarshal payload")
	}
	return nil
}

// Encode builds a frame for a message of type typ. The id is written unless it is
// task.NoRequestID.
func Encode(c Codec, typ string, id task.RequestID, body any) ([]byte, error) {
	env := Envelope{Type: typ}
	if id != task.NoRequestID {
		raw := int64(id)
		env.ReqID = &raw
	}
	if body != nil {
		payload, err := c.Marshal(body)
		if err != nil {
			return nil, errs.WrapInvalid(err, "wire", "Encode", fmt.Sprintf("marshal %s payload", typ))
		}
		env.Payload = payload
	}
	frame, err := c.Marshal(env)
	if err != nil {
		return nil, errs.WrapInvalid(err, "wire", "Encode", "marshal envelope")
	}
	return frame, nil
}

// Open decodes a frame into its envelope.
func Open(c Codec, frame []byte) (Envelope, error) {
	var env Envelope
	if err := c.Unmarshal(frame, &env); err != nil {
		return Envelope{}, errs.WrapInvalid(fmt.Errorf("%w: %v", errs.ErrParsingFailed, err),
			"wire", "Open", "unmarshal envelope")
	}
	if env.Type == "" {
		return Envelope{}, errs.WrapInvalid(fmt.Errorf("%w: envelope without type", errs.ErrInvalidData),
			"wire", "Open", "validate envelope")
	}
	return env, nil
}

// FrameSender writes one frame to a connection.
type FrameSender interface {
	Send(ctx context.Context, frame []byte) error
}

// Writer encodes calls onto a connection. It is the task.Sender commands transmit
// through.
type Writer struct {
	Codec Codec
	Conn  FrameSender
}

// SendCall encodes and sends one call.
func (w Writer) SendCall(ctx context.Context, name string, id task.RequestID, body any) error {
	frame, err := Encode(w.Codec, name, id, body)
	if err != nil {
		return err
	}
	return w.Conn.Send(ctx, frame)
}

var _ task.Sender = Writer{}
