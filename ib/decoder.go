package ib

import (
	"github.com/c360/callbridge/task"
	"github.com/c360/callbridge/wire"
)

// Decoder returns a registry that decodes every event kind of the catalog.
func Decoder() *wire.Registry {
	r := wire.NewRegistry()
	wire.Register(r, KindHistoricalData, func(b task.EventBase, e HistoricalData) task.EventTask {
		e.EventBase = b
		return &e
	})
	wire.Register(r, KindHistoricalDataEnd, func(b task.EventBase, e HistoricalDataEnd) task.EventTask {
		e.EventBase = b
		return &e
	})
	wire.Register(r, KindAccountSummary, func(b task.EventBase, e AccountSummary) task.EventTask {
		e.EventBase = b
		return &e
	})
	wire.Register(r, KindAccountSummaryEnd, func(b task.EventBase, e AccountSummaryEnd) task.EventTask {
		e.EventBase = b
		return &e
	})
	wire.Register(r, KindScannerData, func(b task.EventBase, e ScannerData) task.EventTask {
		e.EventBase = b
		return &e
	})
	wire.Register(r, KindScannerDataEnd, func(b task.EventBase, e ScannerDataEnd) task.EventTask {
		e.EventBase = b
		return &e
	})
	wire.Register(r, KindSymbolSamples, func(b task.EventBase, e SymbolSamples) task.EventTask {
		e.EventBase = b
		return &e
	})
	// The remote never correlates the clock.
	wire.Register(r, KindCurrentTime, func(_ task.EventBase, e CurrentTime) task.EventTask {
		e.EventBase = task.Broadcast(KindCurrentTime)
		return &e
	})
	wire.Register(r, KindError, func(b task.EventBase, e Error) task.EventTask {
		e.EventBase = b
		return &e
	})
	return r
}
