// Package ib is a representative catalog of brokerage API calls and the events
// that answer them, built on the correlation engine.
//
// Calls that expect correlated answers (ReqHistoricalData, ReqAccountSummary,
// ReqScannerSubscription, ReqMatchingSymbols) get a request id from the connection
// context. Streaming calls implement command.Streamer so their commands collect
// intermediate events until the end marker or an Error arrives:
//
//	req := ib.NewHistoricalDataRequest("IBM", ib.SecTypeStock, "SMART", "NYSE", "20140404  23:59:59")
//	res, err := sess.Call(ctx, req, command.WithTimeout(10*time.Second))
//	if err != nil {
//	    return err
//	}
//	if err := res.Failure(); err != nil {
//	    return err // remote rejected the request
//	}
//	bars := stream.Items[*ib.HistoricalData](res.Stream)
//
// CancelHistoricalData and ReqCurrentTime are fire-and-forget. The current time
// arrives as a broadcast CurrentTime event, delivered to subscribers by kind.
package ib
