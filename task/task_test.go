package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countdown struct {
	n   int
	log *[]int
}

func (c countdown) Perform(context.Context) (Task, error) {
	*c.log = append(*c.log, c.n)
	if c.n == 0 {
		return nil, nil
	}
	return countdown{n: c.n - 1, log: c.log}, nil
}

func (c countdown) Description() string { return "countdown" }

func TestChain_StepsUntilNil(t *testing.T) {
	var log []int
	c := NewChain(countdown{n: 3, log: &log}, 0)

	steps := 0
	for c.Next(context.Background()) {
		steps++
		assert.IsType(t, countdown{}, c.Current())
	}

	require.NoError(t, c.Err())
	assert.Equal(t, 4, steps)
	assert.Equal(t, 4, c.Steps())
	assert.Equal(t, []int{3, 2, 1, 0}, log)
	assert.False(t, c.Next(context.Background()), "chain stays exhausted")
}

func TestChain_ErrorStops(t *testing.T) {
	boom := errors.New("boom")
	second := false
	first := Func(func(context.Context) (Task, error) {
		return Func(func(context.Context) (Task, error) {
			second = true
			return nil, boom
		}), nil
	})

	err := Run(context.Background(), first)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, second)
}

func TestChain_StepLimit(t *testing.T) {
	var loop Func
	loop = func(context.Context) (Task, error) { return loop, nil }

	c := NewChain(loop, 5)
	for c.Next(context.Background()) {
	}
	assert.ErrorIs(t, c.Err(), ErrStepLimit)
	assert.Equal(t, 5, c.Steps())
}

func TestChain_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var log []int
	err := Run(ctx, countdown{n: 2, log: &log})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log)
}

func TestRun_NilTask(t *testing.T) {
	assert.NoError(t, Run(context.Background(), nil))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "countdown", Describe(countdown{}))
	assert.Equal(t, "task.Func", Describe(Func(nil)))
}

type recordingSender struct {
	name string
	id   RequestID
	body any
	err  error
}

func (r *recordingSender) SendCall(_ context.Context, name string, id RequestID, body any) error {
	r.name, r.id, r.body = name, id, body
	return r.err
}

type pingCall struct {
	CallBase
	Payload string
}

func (*pingCall) Name() string       { return "Ping" }
func (*pingCall) HasRequestID() bool { return true }
func (c *pingCall) Transmit(ctx context.Context, s Sender) error {
	return s.SendCall(ctx, c.Name(), c.RequestID(), c)
}

func TestSendCall(t *testing.T) {
	s := &recordingSender{}
	call := &pingCall{Payload: "hi"}
	call.SetRequestID(42)

	next, err := SendCall(s, call).Perform(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, "Ping", s.name)
	assert.Equal(t, RequestID(42), s.id)
	assert.Same(t, call, s.body)

	s.err = errors.New("wire down")
	_, err = SendCall(s, call).Perform(context.Background())
	assert.EqualError(t, err, "wire down")
}

func TestRequestID(t *testing.T) {
	assert.False(t, NoRequestID.Valid())
	assert.False(t, RequestID(-1).Valid())
	assert.True(t, RequestID(1).Valid())
	assert.Equal(t, "none", RequestID(-1).String())
	assert.Equal(t, "17", RequestID(17).String())

	var b CallBase
	assert.Equal(t, NoRequestID, b.RequestID())
}

func TestEventBase(t *testing.T) {
	ev := Correlated("Data", 7)
	id, ok := ev.CorrelationID()
	assert.True(t, ok)
	assert.Equal(t, RequestID(7), id)
	assert.Equal(t, EventKind("Data"), ev.Kind())

	_, ok = Correlated("Error", -1).CorrelationID()
	assert.False(t, ok, "negative ids are connection-level notices")

	_, ok = Broadcast("CurrentTime").CorrelationID()
	assert.False(t, ok)

	next, err := ev.Perform(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, next)
}
