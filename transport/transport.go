// Package transport defines the frame-level connection the correlation engine
// runs over, and outbound pacing for it.
package transport

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	errs "github.com/c360/callbridge/errors"
)

// ErrClosed is returned by Send and Recv once the connection is closed.
var ErrClosed = errs.ErrConnectionClosed

// Conn carries whole frames in both directions. Recv returns frames in the order
// they arrived. Send and Recv may be called concurrently with each other.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Default outbound pacing. The remote disconnects clients that exceed its message
// rate ceiling.
const (
	DefaultRate  = 50.0
	DefaultBurst = 10
)

// PacedConn delays outbound frames to stay under a message rate.
type PacedConn struct {
	Conn
	limiter *rate.Limiter
}

// Paced wraps c with a token bucket of perSecond frames and the given burst.
// Non-positive values select the defaults.
func Paced(c Conn, perSecond float64, burst int) *PacedConn {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &PacedConn{Conn: c, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Send waits for a token, then sends. A context that ends first, or a deadline too
// short to ever get a token, fails with ErrRateLimited.
func (p *PacedConn) Send(ctx context.Context, frame []byte) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return errs.WrapTransient(fmt.Errorf("%w: %v", errs.ErrRateLimited, err),
			"PacedConn", "Send", "wait for send token")
	}
	return p.Conn.Send(ctx, frame)
}
