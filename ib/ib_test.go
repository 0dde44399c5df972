package ib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/callbridge/task"
	"github.com/c360/callbridge/transport/memconn"
	"github.com/c360/callbridge/wire"
)

type captured struct {
	name string
	id   task.RequestID
	body any
}

func (c *captured) SendCall(_ context.Context, name string, id task.RequestID, body any) error {
	c.name, c.id, c.body = name, id, body
	return nil
}

func TestNewHistoricalDataRequest_Defaults(t *testing.T) {
	req := NewHistoricalDataRequest("IBM", SecTypeStock, "SMART", "NYSE", "20140404  23:59:59")

	assert.Equal(t, "2 D", req.Duration)
	assert.Equal(t, "1 min", req.BarSize)
	assert.Equal(t, "TRADES", req.WhatToShow)
	assert.Equal(t, RegularTradingOnly, req.UseRTH)
	assert.Equal(t, FormatDateEpoch, req.FormatDate)
	assert.Equal(t, CurrencyUSD, req.Contract.Currency)
	assert.True(t, req.HasRequestID())
	assert.True(t, req.StreamSpec().IsTerminal(KindHistoricalDataEnd))
	assert.True(t, req.StreamSpec().IsTerminal(KindError))
	assert.False(t, req.StreamSpec().IsTerminal(KindHistoricalData))

	req.SetRequestID(7)
	assert.Equal(t,
		`ReqHistoricalData[7]("IBM/STK/USD/SMART/NYSE") { endDateTime="20140404  23:59:59" durationStr="2 D" barSizeSetting="1 min" whatToShow="TRADES" useRth=1 formatDate=2 }`,
		req.Description())
}

func TestCalls_Transmit(t *testing.T) {
	tests := []struct {
		name   string
		call   task.CallTask
		wantID task.RequestID
	}{
		{"historical", &ReqHistoricalData{}, 3},
		{"account summary", &ReqAccountSummary{Group: "All", Tags: "NetLiquidation"}, 3},
		{"scanner", &ReqScannerSubscription{}, 3},
		{"matching symbols", &ReqMatchingSymbols{Pattern: "IB"}, 3},
		{"cancel", &CancelHistoricalData{Target: 9}, task.NoRequestID},
		{"current time", &ReqCurrentTime{}, task.NoRequestID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.call.HasRequestID() {
				tt.call.SetRequestID(3)
			}
			s := &captured{}
			require.NoError(t, tt.call.Transmit(context.Background(), s))
			assert.Equal(t, tt.call.Name(), s.name)
			assert.Equal(t, tt.wantID, s.id)
			assert.NotEmpty(t, task.Describe(tt.call))
		})
	}
}

func TestDecoder_Kinds(t *testing.T) {
	kinds := Decoder().Kinds()
	assert.Len(t, kinds, 9)
	assert.Contains(t, kinds, KindHistoricalData)
	assert.Contains(t, kinds, KindError)
}

func TestDecoder_CorrelatedAndBroadcast(t *testing.T) {
	codecs := []wire.Codec{wire.JSON()}
	cb, err := wire.CBOR()
	require.NoError(t, err)
	codecs = append(codecs, cb)

	for _, codec := range codecs {
		t.Run(codec.ContentType(), func(t *testing.T) {
			dec := Decoder()

			frame, err := wire.Encode(codec, string(KindHistoricalData), 12, HistoricalData{Date: "1396656000", Close: 187.5, Volume: 42})
			require.NoError(t, err)
			ev, err := dec.Decode(codec, frame)
			require.NoError(t, err)
			bar, ok := ev.(*HistoricalData)
			require.True(t, ok)
			id, correlated := bar.CorrelationID()
			assert.True(t, correlated)
			assert.Equal(t, task.RequestID(12), id)
			assert.Equal(t, 187.5, bar.Close)
			assert.Equal(t, int64(42), bar.Volume)

			frame, err = wire.Encode(codec, string(KindError), -1, Error{Code: 1100, Message: "connectivity lost"})
			require.NoError(t, err)
			ev, err = dec.Decode(codec, frame)
			require.NoError(t, err)
			_, correlated = ev.CorrelationID()
			assert.False(t, correlated)

			frame, err = wire.Encode(codec, string(KindCurrentTime), 5, CurrentTime{Epoch: 1396656000})
			require.NoError(t, err)
			ev, err = dec.Decode(codec, frame)
			require.NoError(t, err)
			_, correlated = ev.CorrelationID()
			assert.False(t, correlated, "the clock is never correlated")
			assert.Equal(t, int64(1396656000), ev.(*CurrentTime).Time().Unix())
		})
	}
}

func TestError_Failure(t *testing.T) {
	ev := &Error{EventBase: task.Correlated(KindError, 4), Code: 200, Message: "no security definition"}

	err := ev.Failure()
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, task.RequestID(4), remote.RequestID)
	assert.Equal(t, 200, remote.Code)
	assert.Equal(t, "remote error 200 for request 4: no security definition", err.Error())
	assert.Equal(t, `Error[4] { code=200 message="no security definition" }`, ev.Description())
}

func TestMatchSymbols(t *testing.T) {
	got := matchSymbols("am")
	require.Len(t, got, 2)
	assert.Equal(t, "AMD", got[0].Contract.Symbol)
	assert.Equal(t, "AMZN", got[1].Contract.Symbol)
	assert.Empty(t, matchSymbols(""))
}

func TestSimulator_ErrorCodes(t *testing.T) {
	local, remote := memconn.Pipe(0)
	defer local.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = (&Simulator{Conn: remote}).Run(ctx) }()

	codec := wire.JSON()
	dec := Decoder()
	ask := func(call string, id task.RequestID, body any) *Error {
		t.Helper()
		frame, err := wire.Encode(codec, call, id, body)
		require.NoError(t, err)
		require.NoError(t, local.Send(ctx, frame))

		reply, err := local.Recv(ctx)
		require.NoError(t, err)
		ev, err := dec.Decode(codec, reply)
		require.NoError(t, err)
		e, ok := ev.(*Error)
		require.True(t, ok, "want an Error, got %s", ev.Kind())
		return e
	}

	malformed := ask(CallReqMatchingSymbols, 7, 42)
	assert.Equal(t, CodeInvalidRequest, malformed.Code)
	id, _ := malformed.CorrelationID()
	assert.Equal(t, task.RequestID(7), id)

	unknown := ask("reqNothing", 8, nil)
	assert.Equal(t, CodeUnknownCall, unknown.Code)
	assert.Contains(t, unknown.Message, "reqNothing")
}
