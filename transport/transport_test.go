package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/c360/callbridge/errors"
)

type countingConn struct {
	mu    sync.Mutex
	sends []time.Time
}

func (c *countingConn) Send(context.Context, []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, time.Now())
	return nil
}
func (c *countingConn) Recv(ctx context.Context) ([]byte, error) { <-ctx.Done(); return nil, ctx.Err() }
func (c *countingConn) Close() error                             { return nil }

func TestPaced_Limits(t *testing.T) {
	inner := &countingConn{}
	p := Paced(inner, 100, 1)

	start := time.Now()
	for range 6 {
		require.NoError(t, p.Send(context.Background(), []byte("x")))
	}

	// One token up front, then one every 10ms.
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
	assert.Len(t, inner.sends, 6)
}

func TestPaced_ContextEnds(t *testing.T) {
	p := Paced(&countingConn{}, 1, 1)
	require.NoError(t, p.Send(context.Background(), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Send(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRateLimited)
	assert.True(t, errs.IsTransient(err))
}

func TestPaced_Defaults(t *testing.T) {
	p := Paced(&countingConn{}, 0, 0)
	assert.Equal(t, DefaultBurst, p.limiter.Burst())
	assert.InDelta(t, DefaultRate, float64(p.limiter.Limit()), 0.001)
}
