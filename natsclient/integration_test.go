//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_PublishSubscribe(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	ctx := context.Background()

	received := make(chan string, 1)
	_, err := tc.Client.Subscribe(ctx, "test.subject", func(_ context.Context, data []byte) {
		received <- string(data)
	})
	require.NoError(t, err)
	require.NoError(t, tc.Client.Flush(ctx))

	require.NoError(t, tc.Client.Publish(ctx, "test.subject", []byte("hello")))

	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

func TestIntegration_JetStream(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := tc.Client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     "TEST",
		Subjects: []string{"test.>"},
	})
	require.NoError(t, err)

	require.NoError(t, tc.Client.PublishToStream(ctx, "test.one", []byte("1")))
	require.NoError(t, tc.Client.PublishToStream(ctx, "test.two", []byte("2")))

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)

	_, err = tc.Client.EnsureStream(ctx, jetstream.StreamConfig{Name: "TEST", Subjects: []string{"test.>"}})
	assert.NoError(t, err, "ensure is idempotent")
}

func TestIntegration_Close(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	ctx := context.Background()

	client, err := tc.NewClient(ctx)
	require.NoError(t, err)
	assert.True(t, client.IsHealthy())

	_, err = client.Subscribe(ctx, "x", func(context.Context, []byte) {})
	require.NoError(t, err)

	require.NoError(t, client.Close(ctx))
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.ErrorIs(t, client.Publish(ctx, "x", nil), ErrNotConnected)
}
