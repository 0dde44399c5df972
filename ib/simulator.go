package ib

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/task"
	"github.com/c360/callbridge/transport"
	"github.com/c360/callbridge/wire"
)

// Remote error codes sent by the simulator.
const (
	CodeNoSecurityDefinition = 200
	CodeInvalidRequest       = 321
	CodeUnknownCall          = 504
)

// Simulator plays the remote side of a connection: it answers catalog calls with
// canned events. It is meant for demos and tests.
type Simulator struct {
	Conn   transport.Conn
	Codec  wire.Codec
	Logger *slog.Logger
	// Now is the server clock. Defaults to time.Now.
	Now func() time.Time
	// Bars is the number of bars per historical data request. Defaults to 3.
	Bars int
	// Delay is slept before each event.
	Delay time.Duration
	// Ignore lists call names the simulator reads but never answers.
	Ignore []string
}

// Run answers calls until ctx ends or the connection closes.
func (s *Simulator) Run(ctx context.Context) error {
	if s.Codec == nil {
		s.Codec = wire.JSON()
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Bars <= 0 {
		s.Bars = 3
	}

	for {
		frame, err := s.Conn.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, transport.ErrClosed) {
				return nil
			}
			return errs.WrapTransient(err, "Simulator", "Run", "receive call")
		}
		env, err := wire.Open(s.Codec, frame)
		if err != nil {
			s.Logger.Warn("simulator dropping frame", "error", err)
			continue
		}
		if err := s.answer(ctx, env); err != nil {
			if ctx.Err() != nil || stderrors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (s *Simulator) answer(ctx context.Context, env wire.Envelope) error {
	id := env.RequestID()
	for _, name := range s.Ignore {
		if name == env.Type {
			s.Logger.Debug("simulator ignoring call", "call", env.Type, "request_id", int64(id))
			return nil
		}
	}
	s.Logger.Debug("simulator answering call", "call", env.Type, "request_id", int64(id))

	switch env.Type {
	case CallReqHistoricalData:
		var req ReqHistoricalData
		if err := env.Body(s.Codec, &req); err != nil {
			return s.fail(ctx, id, CodeInvalidRequest, err.Error())
		}
		return s.historicalData(ctx, id, req)

	case CallReqAccountSummary:
		var req ReqAccountSummary
		if err := env.Body(s.Codec, &req); err != nil {
			return s.fail(ctx, id, CodeInvalidRequest, err.Error())
		}
		for _, tag := range strings.Split(req.Tags, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			row := AccountSummary{Account: "DU000001", Tag: tag, Value: "100000.00", Currency: CurrencyUSD}
			if err := s.send(ctx, KindAccountSummary, id, row); err != nil {
				return err
			}
		}
		return s.send(ctx, KindAccountSummaryEnd, id, nil)

	case CallReqScannerSubscription:
		var req ReqScannerSubscription
		if err := env.Body(s.Codec, &req); err != nil {
			return s.fail(ctx, id, CodeInvalidRequest, err.Error())
		}
		rows := req.Subscription.NumberOfRows
		if rows <= 0 {
			rows = 3
		}
		for i := range rows {
			row := ScannerData{
				Rank:     i,
				Contract: Contract{Symbol: fmt.Sprintf("SIM%d", i), SecType: SecTypeStock, Currency: CurrencyUSD, Exchange: "SMART"},
			}
			if err := s.send(ctx, KindScannerData, id, row); err != nil {
				return err
			}
		}
		return s.send(ctx, KindScannerDataEnd, id, nil)

	case CallReqMatchingSymbols:
		var req ReqMatchingSymbols
		if err := env.Body(s.Codec, &req); err != nil {
			return s.fail(ctx, id, CodeInvalidRequest, err.Error())
		}
		return s.send(ctx, KindSymbolSamples, id, SymbolSamples{Descriptions: matchSymbols(req.Pattern)})

	case CallReqCurrentTime:
		return s.send(ctx, KindCurrentTime, task.NoRequestID, CurrentTime{Epoch: s.Now().Unix()})

	case CallCancelHistoricalData:
		return nil

	default:
		if !id.Valid() {
			id = -1
		}
		return s.fail(ctx, id, CodeUnknownCall, fmt.Sprintf("unknown call %q", env.Type))
	}
}

func (s *Simulator) historicalData(ctx context.Context, id task.RequestID, req ReqHistoricalData) error {
	if req.Contract.Symbol == "" {
		return s.fail(ctx, id, CodeNoSecurityDefinition, "No security definition has been found for the request")
	}

	end := s.Now().Truncate(time.Minute)
	start := end.Add(-time.Duration(s.Bars) * time.Minute)
	for i := range s.Bars {
		at := start.Add(time.Duration(i) * time.Minute)
		price := 100 + 5*math.Sin(float64(i))
		bar := HistoricalData{
			Date:   fmt.Sprint(at.Unix()),
			Open:   price,
			High:   price + 0.5,
			Low:    price - 0.5,
			Close:  price + 0.25,
			Volume: int64(1000 + 10*i),
			Count:  10 + i,
			WAP:    price + 0.1,
		}
		if err := s.send(ctx, KindHistoricalData, id, bar); err != nil {
			return err
		}
	}
	return s.send(ctx, KindHistoricalDataEnd, id, HistoricalDataEnd{
		Start: fmt.Sprint(start.Unix()),
		End:   fmt.Sprint(end.Unix()),
	})
}

func (s *Simulator) fail(ctx context.Context, id task.RequestID, code int, msg string) error {
	return s.send(ctx, KindError, id, Error{Code: code, Message: msg})
}

func (s *Simulator) send(ctx context.Context, kind task.EventKind, id task.RequestID, body any) error {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	frame, err := wire.Encode(s.Codec, string(kind), id, body)
	if err != nil {
		return err
	}
	return s.Conn.Send(ctx, frame)
}

var knownSymbols = []ContractDescription{
	{Contract: Contract{ConID: 8314, Symbol: "IBM", SecType: SecTypeStock, Currency: CurrencyUSD, PrimaryExchange: "NYSE"}, DerivativeSecTypes: []string{SecTypeOption}},
	{Contract: Contract{ConID: 265598, Symbol: "AAPL", SecType: SecTypeStock, Currency: CurrencyUSD, PrimaryExchange: "NASDAQ"}, DerivativeSecTypes: []string{SecTypeOption}},
	{Contract: Contract{ConID: 272093, Symbol: "MSFT", SecType: SecTypeStock, Currency: CurrencyUSD, PrimaryExchange: "NASDAQ"}, DerivativeSecTypes: []string{SecTypeOption}},
	{Contract: Contract{ConID: 4391, Symbol: "AMD", SecType: SecTypeStock, Currency: CurrencyUSD, PrimaryExchange: "NASDAQ"}},
	{Contract: Contract{ConID: 3691937, Symbol: "AMZN", SecType: SecTypeStock, Currency: CurrencyUSD, PrimaryExchange: "NASDAQ"}},
}

func matchSymbols(pattern string) []ContractDescription {
	pattern = strings.ToUpper(strings.TrimSpace(pattern))
	var out []ContractDescription
	for _, d := range knownSymbols {
		if pattern != "" && strings.HasPrefix(d.Contract.Symbol, pattern) {
			out = append(out, d)
		}
	}
	return out
}
