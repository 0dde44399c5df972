package memconn

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/callbridge/transport"
)

func TestPipe_OrderedBothWays(t *testing.T) {
	a, b := Pipe(0)
	ctx := context.Background()

	go func() {
		for i := range 100 {
			_ = a.Send(ctx, []byte(fmt.Sprint(i)))
		}
	}()
	for i := range 100 {
		frame, err := b.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(frame))
	}

	require.NoError(t, b.Send(ctx, []byte("back")))
	frame, err := a.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "back", string(frame))
}

func TestPipe_CopiesFrames(t *testing.T) {
	a, b := Pipe(1)
	buf := []byte("abc")
	require.NoError(t, a.Send(context.Background(), buf))
	buf[0] = 'z'

	frame, err := b.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(frame))
}

func TestPipe_Close(t *testing.T) {
	a, b := Pipe(4)
	ctx := context.Background()
	require.NoError(t, a.Send(ctx, []byte("queued")))
	require.NoError(t, b.Close())

	frame, err := b.Recv(ctx)
	require.NoError(t, err, "queued frames survive close")
	assert.Equal(t, "queued", string(frame))

	_, err = b.Recv(ctx)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.ErrorIs(t, a.Send(ctx, nil), transport.ErrClosed)
	assert.NoError(t, a.Close())
}

func TestPipe_ContextEnds(t *testing.T) {
	a, b := Pipe(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, a.Send(context.Background(), nil))
	assert.ErrorIs(t, a.Send(ctx, nil), context.DeadlineExceeded, "full inbox blocks until ctx ends")
}
