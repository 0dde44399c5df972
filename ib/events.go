package ib

import (
	"fmt"
	"time"

	"github.com/c360/callbridge/task"
)

// Event kinds.
const (
	KindHistoricalData    task.EventKind = "HistoricalData"
	KindHistoricalDataEnd task.EventKind = "HistoricalDataEnd"
	KindAccountSummary    task.EventKind = "AccountSummary"
	KindAccountSummaryEnd task.EventKind = "AccountSummaryEnd"
	KindScannerData       task.EventKind = "ScannerData"
	KindScannerDataEnd    task.EventKind = "ScannerDataEnd"
	KindSymbolSamples     task.EventKind = "SymbolSamples"
	KindCurrentTime       task.EventKind = "CurrentTime"
	KindError             task.EventKind = "Error"
)

// HistoricalData is one bar of a historical data request.
type HistoricalData struct {
	task.EventBase `json:"-" cbor:"-"`

	Date    string  `json:"date" cbor:"date"`
	Open    float64 `json:"open" cbor:"open"`
	High    float64 `json:"high" cbor:"high"`
	Low     float64 `json:"low" cbor:"low"`
	Close   float64 `json:"close" cbor:"close"`
	Volume  int64   `json:"volume" cbor:"volume"`
	Count   int     `json:"count" cbor:"count"`
	WAP     float64 `json:"wap" cbor:"wap"`
	HasGaps bool    `json:"has_gaps,omitempty" cbor:"has_gaps,omitempty"`
}

func (e *HistoricalData) Description() string {
	id, _ := e.CorrelationID()
	return fmt.Sprintf("%s[%s] { date=%q open=%g high=%g low=%g close=%g volume=%d }",
		e.Kind(), id, e.Date, e.Open, e.High, e.Low, e.Close, e.Volume)
}

// HistoricalDataEnd ends a historical data stream.
type HistoricalDataEnd struct {
	task.EventBase `json:"-" cbor:"-"`

	Start string `json:"start" cbor:"start"`
	End   string `json:"end" cbor:"end"`
}

func (e *HistoricalDataEnd) Description() string {
	id, _ := e.CorrelationID()
	return fmt.Sprintf("%s[%s] { start=%q end=%q }", e.Kind(), id, e.Start, e.End)
}

// AccountSummary is one account value.
type AccountSummary struct {
	task.EventBase `json:"-" cbor:"-"`

	Account  string `json:"account" cbor:"account"`
	Tag      string `json:"tag" cbor:"tag"`
	Value    string `json:"value" cbor:"value"`
	Currency string `json:"currency,omitempty" cbor:"currency,omitempty"`
}

func (e *AccountSummary) Description() string {
	id, _ := e.CorrelationID()
	return fmt.Sprintf("%s[%s] { account=%q %s=%s %s }", e.Kind(), id, e.Account, e.Tag, e.Value, e.Currency)
}

// AccountSummaryEnd is sent once all rows of an account summary request are in.
type AccountSummaryEnd struct {
	task.EventBase `json:"-" cbor:"-"`
}

func (e *AccountSummaryEnd) Description() string {
	id, _ := e.CorrelationID()
	return fmt.Sprintf("%s[%s]", e.Kind(), id)
}

// ScannerData is one ranked row of a scan.
type ScannerData struct {
	task.EventBase `json:"-" cbor:"-"`

	Rank       int      `json:"rank" cbor:"rank"`
	Contract   Contract `json:"contract" cbor:"contract"`
	Distance   string   `json:"distance,omitempty" cbor:"distance,omitempty"`
	Benchmark  string   `json:"benchmark,omitempty" cbor:"benchmark,omitempty"`
	Projection string   `json:"projection,omitempty" cbor:"projection,omitempty"`
}

func (e *ScannerData) Description() string {
	id, _ := e.CorrelationID()
	return fmt.Sprintf("%s[%s] { rank=%d contract=%q }", e.Kind(), id, e.Rank, e.Contract.String())
}

// ScannerDataEnd marks the end of one scan.
type ScannerDataEnd struct {
	task.EventBase `json:"-" cbor:"-"`
}

func (e *ScannerDataEnd) Description() string {
	id, _ := e.CorrelationID()
	return fmt.Sprintf("%s[%s]", e.Kind(), id)
}

// SymbolSamples answers ReqMatchingSymbols.
type SymbolSamples struct {
	task.EventBase `json:"-" cbor:"-"`

	Descriptions []ContractDescription `json:"descriptions" cbor:"descriptions"`
}

func (e *SymbolSamples) Description() string {
	id, _ := e.CorrelationID()
	return fmt.Sprintf("%s[%s] { matches=%d }", e.Kind(), id, len(e.Descriptions))
}

// CurrentTime carries the server clock in epoch seconds.
type CurrentTime struct {
	task.EventBase `json:"-" cbor:"-"`

	Epoch int64 `json:"time" cbor:"time"`
}

// Time returns the server clock.
func (e *CurrentTime) Time() time.Time { return time.Unix(e.Epoch, 0).UTC() }

func (e *CurrentTime) Description() string {
	return fmt.Sprintf("%s { time=%s }", e.Kind(), e.Time().Format(time.RFC3339))
}

// Error reports a remote failure. With a request id it answers that request;
// with id -1 it is a connection-level notice delivered to subscribers.
type Error struct {
	task.EventBase `json:"-" cbor:"-"`

	Code    int    `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
}

// Failure returns the remote error.
func (e *Error) Failure() error {
	id, _ := e.CorrelationID()
	return &RemoteError{RequestID: id, Code: e.Code, Message: e.Message}
}

func (e *Error) Description() string {
	id, _ := e.CorrelationID()
	return fmt.Sprintf("%s[%s] { code=%d message=%q }", e.Kind(), id, e.Code, e.Message)
}

// RemoteError is the error value of an Error event.
type RemoteError struct {
	RequestID task.RequestID
	Code      int
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d for request %s: %s", e.Code, e.RequestID, e.Message)
}

var (
	_ task.EventTask = (*HistoricalData)(nil)
	_ task.EventTask = (*HistoricalDataEnd)(nil)
	_ task.EventTask = (*AccountSummary)(nil)
	_ task.EventTask = (*AccountSummaryEnd)(nil)
	_ task.EventTask = (*ScannerData)(nil)
	_ task.EventTask = (*ScannerDataEnd)(nil)
	_ task.EventTask = (*SymbolSamples)(nil)
	_ task.EventTask = (*CurrentTime)(nil)
	_ task.EventTask = (*Error)(nil)
	_ task.Failure   = (*Error)(nil)
)
