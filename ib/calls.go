package ib

import (
	"context"
	"fmt"

	"github.com/c360/callbridge/stream"
	"github.com/c360/callbridge/task"
)

// Call names on the wire.
const (
	CallReqHistoricalData      = "ReqHistoricalData"
	CallCancelHistoricalData   = "CancelHistoricalData"
	CallReqAccountSummary      = "ReqAccountSummary"
	CallReqScannerSubscription = "ReqScannerSubscription"
	CallReqMatchingSymbols     = "ReqMatchingSymbols"
	CallReqCurrentTime         = "ReqCurrentTime"
)

// Values of ReqHistoricalData.UseRTH and FormatDate.
const (
	AllHours           = 0
	RegularTradingOnly = 1

	FormatDateString = 1
	FormatDateEpoch  = 2
)

// ReqHistoricalData requests bars for a contract. Bars arrive as HistoricalData
// events followed by HistoricalDataEnd.
type ReqHistoricalData struct {
	task.CallBase `json:"-" cbor:"-"`

	Contract Contract `json:"contract" cbor:"contract"`
	// EndDateTime is "yyyymmdd hh:mm:ss [tmz]".
	EndDateTime string `json:"end_date_time" cbor:"end_date_time"`
	// Duration is "<n> <unit>" with unit one of S, D, W, M, Y.
	Duration string `json:"duration" cbor:"duration"`
	// BarSize is one of "1 sec" ... "1 day".
	BarSize string `json:"bar_size" cbor:"bar_size"`
	// WhatToShow is TRADES, MIDPOINT, BID, ASK, BID_ASK, HISTORICAL_VOLATILITY or
	// OPTION_IMPLIED_VOLATILITY.
	WhatToShow string `json:"what_to_show" cbor:"what_to_show"`
	UseRTH     int    `json:"use_rth" cbor:"use_rth"`
	FormatDate int    `json:"format_date" cbor:"format_date"`
}

// NewHistoricalDataRequest requests two days of one-minute trade bars in regular
// trading hours, dated in epoch seconds, for a USD contract.
func NewHistoricalDataRequest(symbol, secType, exchange, primaryExchange, endDateTime string) *ReqHistoricalData {
	return &ReqHistoricalData{
		Contract: Contract{
			Symbol:          symbol,
			SecType:         secType,
			Currency:        CurrencyUSD,
			Exchange:        exchange,
			PrimaryExchange: primaryExchange,
		},
		EndDateTime: endDateTime,
		Duration:    "2 D",
		BarSize:     "1 min",
		WhatToShow:  "TRADES",
		UseRTH:      RegularTradingOnly,
		FormatDate:  FormatDateEpoch,
	}
}

func (*ReqHistoricalData) Name() string       { return CallReqHistoricalData }
func (*ReqHistoricalData) HasRequestID() bool { return true }

func (c *ReqHistoricalData) Transmit(ctx context.Context, s task.Sender) error {
	return s.SendCall(ctx, c.Name(), c.RequestID(), c)
}

// StreamSpec ends the stream on HistoricalDataEnd or a correlated Error.
func (*ReqHistoricalData) StreamSpec() stream.Spec {
	return stream.Spec{Terminals: []task.EventKind{KindHistoricalDataEnd, KindError}}
}

func (c *ReqHistoricalData) Description() string {
	return fmt.Sprintf("%s[%s](%q) { endDateTime=%q durationStr=%q barSizeSetting=%q whatToShow=%q useRth=%d formatDate=%d }",
		c.Name(), c.RequestID(), c.Contract.String(), c.EndDateTime, c.Duration, c.BarSize, c.WhatToShow, c.UseRTH, c.FormatDate)
}

// CancelHistoricalData stops a running historical data request. The remote sends
// no answer.
type CancelHistoricalData struct {
	task.CallBase `json:"-" cbor:"-"`

	Target task.RequestID `json:"target" cbor:"target"`
}

func (*CancelHistoricalData) Name() string       { return CallCancelHistoricalData }
func (*CancelHistoricalData) HasRequestID() bool { return false }

func (c *CancelHistoricalData) Transmit(ctx context.Context, s task.Sender) error {
	return s.SendCall(ctx, c.Name(), task.NoRequestID, c)
}

func (c *CancelHistoricalData) Description() string {
	return fmt.Sprintf("%s[%s]", c.Name(), c.Target)
}

// ReqAccountSummary requests account values. Rows arrive as AccountSummary events
// followed by AccountSummaryEnd.
type ReqAccountSummary struct {
	task.CallBase `json:"-" cbor:"-"`

	// Group is "All" or an advisor group name.
	Group string `json:"group" cbor:"group"`
	// Tags is a comma separated list such as "NetLiquidation,BuyingPower".
	Tags string `json:"tags" cbor:"tags"`
}

func (*ReqAccountSummary) Name() string       { return CallReqAccountSummary }
func (*ReqAccountSummary) HasRequestID() bool { return true }

func (c *ReqAccountSummary) Transmit(ctx context.Context, s task.Sender) error {
	return s.SendCall(ctx, c.Name(), c.RequestID(), c)
}

func (*ReqAccountSummary) StreamSpec() stream.Spec {
	return stream.Spec{Terminals: []task.EventKind{KindAccountSummaryEnd, KindError}}
}

func (c *ReqAccountSummary) Description() string {
	return fmt.Sprintf("%s[%s] { group=%q tags=%q }", c.Name(), c.RequestID(), c.Group, c.Tags)
}

// ScannerSubscription selects instruments for a market scan.
type ScannerSubscription struct {
	Instrument   string  `json:"instrument" cbor:"instrument"`
	LocationCode string  `json:"location_code" cbor:"location_code"`
	ScanCode     string  `json:"scan_code" cbor:"scan_code"`
	NumberOfRows int     `json:"number_of_rows,omitempty" cbor:"number_of_rows,omitempty"`
	AbovePrice   float64 `json:"above_price,omitempty" cbor:"above_price,omitempty"`
	BelowPrice   float64 `json:"below_price,omitempty" cbor:"below_price,omitempty"`
}

// ReqScannerSubscription runs one scan. Ranked rows arrive as ScannerData events
// followed by ScannerDataEnd.
type ReqScannerSubscription struct {
	task.CallBase `json:"-" cbor:"-"`

	Subscription ScannerSubscription `json:"subscription" cbor:"subscription"`
}

func (*ReqScannerSubscription) Name() string       { return CallReqScannerSubscription }
func (*ReqScannerSubscription) HasRequestID() bool { return true }

func (c *ReqScannerSubscription) Transmit(ctx context.Context, s task.Sender) error {
	return s.SendCall(ctx, c.Name(), c.RequestID(), c)
}

func (*ReqScannerSubscription) StreamSpec() stream.Spec {
	return stream.Spec{Terminals: []task.EventKind{KindScannerDataEnd, KindError}}
}

func (c *ReqScannerSubscription) Description() string {
	sub := c.Subscription
	return fmt.Sprintf("%s[%s] { instrument=%q location=%q scanCode=%q rows=%d }",
		c.Name(), c.RequestID(), sub.Instrument, sub.LocationCode, sub.ScanCode, sub.NumberOfRows)
}

// ReqMatchingSymbols searches contracts by symbol prefix. The answer is a single
// SymbolSamples event.
type ReqMatchingSymbols struct {
	task.CallBase `json:"-" cbor:"-"`

	Pattern string `json:"pattern" cbor:"pattern"`
}

func (*ReqMatchingSymbols) Name() string       { return CallReqMatchingSymbols }
func (*ReqMatchingSymbols) HasRequestID() bool { return true }

func (c *ReqMatchingSymbols) Transmit(ctx context.Context, s task.Sender) error {
	return s.SendCall(ctx, c.Name(), c.RequestID(), c)
}

func (c *ReqMatchingSymbols) Description() string {
	return fmt.Sprintf("%s[%s](%q)", c.Name(), c.RequestID(), c.Pattern)
}

// ReqCurrentTime asks for the server clock. The reply is a broadcast CurrentTime.
type ReqCurrentTime struct {
	task.CallBase `json:"-" cbor:"-"`
}

func (*ReqCurrentTime) Name() string       { return CallReqCurrentTime }
func (*ReqCurrentTime) HasRequestID() bool { return false }

func (c *ReqCurrentTime) Transmit(ctx context.Context, s task.Sender) error {
	return s.SendCall(ctx, c.Name(), task.NoRequestID, nil)
}

func (c *ReqCurrentTime) Description() string { return c.Name() }

var (
	_ task.CallTask = (*ReqHistoricalData)(nil)
	_ task.CallTask = (*CancelHistoricalData)(nil)
	_ task.CallTask = (*ReqAccountSummary)(nil)
	_ task.CallTask = (*ReqScannerSubscription)(nil)
	_ task.CallTask = (*ReqMatchingSymbols)(nil)
	_ task.CallTask = (*ReqCurrentTime)(nil)
)
