// Package memconn provides an in-process connection pair.
package memconn

import (
	"bytes"
	"context"
	"sync"

	"github.com/c360/callbridge/transport"
)

// DefaultBuffer is the number of frames each direction holds before Send blocks.
const DefaultBuffer = 64

type pipe struct {
	done chan struct{}
	once sync.Once
}

// Conn is one end of a pair.
type Conn struct {
	p     *pipe
	inbox chan []byte
	peer  *Conn
}

// Pipe returns two connected ends. Frames sent on one are received on the other in
// order. Closing either end closes both.
func Pipe(buffer int) (*Conn, *Conn) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	p := &pipe{done: make(chan struct{})}
	a := &Conn{p: p, inbox: make(chan []byte, buffer)}
	b := &Conn{p: p, inbox: make(chan []byte, buffer)}
	a.peer, b.peer = b, a
	return a, b
}

// Send copies frame to the peer's inbox.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.p.done:
		return transport.ErrClosed
	default:
	}
	select {
	case c.peer.inbox <- bytes.Clone(frame):
		return nil
	case <-c.p.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next frame. Frames already queued are still returned after the
// pair is closed.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.inbox:
		return frame, nil
	default:
	}
	select {
	case frame := <-c.inbox:
		return frame, nil
	case <-c.p.done:
		select {
		case frame := <-c.inbox:
			return frame, nil
		default:
			return nil, transport.ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends.
func (c *Conn) Close() error {
	c.p.once.Do(func() { close(c.p.done) })
	return nil
}

var _ transport.Conn = (*Conn)(nil)
