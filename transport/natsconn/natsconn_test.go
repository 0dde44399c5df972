package natsconn

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubjects(t *testing.T) {
	calls, events := Subjects("ib", "acct.7")
	assert.Equal(t, "ib.acct_7.calls", calls)
	assert.Equal(t, "ib.acct_7.events", events)

	calls, _ = Subjects("", "x")
	assert.Equal(t, "callbridge.x.calls", calls)
}

func newTestConn(buffer int) *Conn {
	return &Conn{
		inbox:  make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: slog.New(slog.DiscardHandler),
	}
}

func TestReceive_EndedContextKeepsFramesWhileInboxHasRoom(t *testing.T) {
	c := newTestConn(1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 1000 {
		c.receive(ctx, []byte("frame"))
	}
	assert.Len(t, c.inbox, 1000)
}

func TestReceive_FullInboxDropsWhenContextEnds(t *testing.T) {
	c := newTestConn(1)
	c.receive(context.Background(), []byte("first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c.receive(ctx, []byte("second"))

	assert.Equal(t, "first", string(<-c.inbox))
	assert.Empty(t, c.inbox)
}
