package ib_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/callbridge/command"
	"github.com/c360/callbridge/ib"
	"github.com/c360/callbridge/session"
	"github.com/c360/callbridge/stream"
	"github.com/c360/callbridge/task"
	"github.com/c360/callbridge/transport/memconn"
)

func simulated(t *testing.T, sim *ib.Simulator) *session.Session {
	t.Helper()
	local, remote := memconn.Pipe(64)
	sim.Conn = remote

	sess := session.New(local, ib.Decoder(), session.WithDefaultTimeout(2*time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = sim.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = sess.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = sess.Close()
		wg.Wait()
	})
	return sess
}

func TestSimulated_HistoricalData(t *testing.T) {
	sess := simulated(t, &ib.Simulator{Bars: 5})

	req := ib.NewHistoricalDataRequest("IBM", ib.SecTypeStock, "SMART", "NYSE", "20140404  23:59:59")
	res, err := sess.Call(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, command.Completed, res.State)
	require.NoError(t, res.Failure())
	bars := stream.Items[*ib.HistoricalData](res.Stream)
	require.Len(t, bars, 5)
	for _, bar := range bars {
		id, _ := bar.CorrelationID()
		assert.Equal(t, res.RequestID, id)
	}
	end, ok := stream.TerminalAs[*ib.HistoricalDataEnd](res.Stream)
	require.True(t, ok)
	assert.NotEmpty(t, end.End)
	assert.Equal(t, 0, sess.Context().Pending())
}

func TestSimulated_HistoricalDataRemoteError(t *testing.T) {
	sess := simulated(t, &ib.Simulator{})

	res, err := sess.Call(context.Background(), &ib.ReqHistoricalData{})
	require.NoError(t, err)
	assert.Equal(t, command.Completed, res.State)
	assert.Equal(t, 0, res.Stream.Len())

	var remote *ib.RemoteError
	require.ErrorAs(t, res.Failure(), &remote)
	assert.Equal(t, ib.CodeNoSecurityDefinition, remote.Code)
}

func TestSimulated_AccountSummaryAndScanner(t *testing.T) {
	sess := simulated(t, &ib.Simulator{})
	ctx := context.Background()

	res, err := sess.Call(ctx, &ib.ReqAccountSummary{Group: "All", Tags: "NetLiquidation, BuyingPower"})
	require.NoError(t, err)
	rows := stream.Items[*ib.AccountSummary](res.Stream)
	require.Len(t, rows, 2)
	assert.Equal(t, "BuyingPower", rows[1].Tag)

	res, err = sess.Call(ctx, &ib.ReqScannerSubscription{Subscription: ib.ScannerSubscription{
		Instrument: "STK", LocationCode: "STK.US.MAJOR", ScanCode: "TOP_PERC_GAIN", NumberOfRows: 4,
	}})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Stream.Len())
	assert.Equal(t, ib.KindScannerDataEnd, res.Event.Kind())
}

func TestSimulated_MatchingSymbols(t *testing.T) {
	sess := simulated(t, &ib.Simulator{})

	res, err := sess.Call(context.Background(), &ib.ReqMatchingSymbols{Pattern: "AA"})
	require.NoError(t, err)
	assert.Nil(t, res.Stream)
	samples, ok := res.Event.(*ib.SymbolSamples)
	require.True(t, ok)
	require.Len(t, samples.Descriptions, 1)
	assert.Equal(t, "AAPL", samples.Descriptions[0].Contract.Symbol)
}

func TestSimulated_CurrentTimeBroadcast(t *testing.T) {
	now := time.Date(2014, 4, 4, 23, 59, 59, 0, time.UTC)
	sess := simulated(t, &ib.Simulator{Now: func() time.Time { return now }})

	got := make(chan *ib.CurrentTime, 1)
	cancel := sess.Subscribe(ib.KindCurrentTime, func(_ context.Context, ev task.EventTask) {
		got <- ev.(*ib.CurrentTime)
	})
	defer cancel()

	require.NoError(t, sess.Send(context.Background(), &ib.ReqCurrentTime{}))
	select {
	case ev := <-got:
		assert.True(t, now.Equal(ev.Time()))
	case <-time.After(2 * time.Second):
		t.Fatal("no CurrentTime broadcast")
	}
}

func TestSimulated_IgnoredCallTimesOut(t *testing.T) {
	sess := simulated(t, &ib.Simulator{Ignore: []string{ib.CallReqMatchingSymbols}})

	res, err := sess.Call(context.Background(), &ib.ReqMatchingSymbols{Pattern: "IBM"}, command.WithTimeout(50*time.Millisecond))
	require.ErrorIs(t, err, command.ErrTimeout)
	assert.Equal(t, command.TimedOut, res.State)
	assert.Equal(t, 0, sess.Context().Pending())
}
