package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/callbridge/command"
	"github.com/c360/callbridge/ib"
	"github.com/c360/callbridge/pkg/retry"
	"github.com/c360/callbridge/session"
	"github.com/c360/callbridge/stream"
	"github.com/c360/callbridge/task"
)

// demo walks the call catalog once against whatever answers on the session.
type demo struct {
	sess    *session.Session
	symbol  string
	timeout time.Duration
	retry   retry.Config
	logger  *slog.Logger
}

func (d *demo) run(ctx context.Context) error {
	serverTime, err := d.currentTime(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("Server time", "time", serverTime.Format(time.RFC3339))

	contract, err := d.lookup(ctx)
	if err != nil {
		return err
	}

	if err := d.history(ctx, contract); err != nil {
		return err
	}
	return d.accountSummary(ctx)
}

// currentTime sends the fire-and-forget request and waits for the broadcast reply.
func (d *demo) currentTime(ctx context.Context) (time.Time, error) {
	got := make(chan time.Time, 1)
	cancel := d.sess.Subscribe(ib.KindCurrentTime, func(_ context.Context, ev task.EventTask) {
		if ct, ok := ev.(*ib.CurrentTime); ok {
			select {
			case got <- ct.Time():
			default:
			}
		}
	})
	defer cancel()

	if err := d.sess.Send(ctx, &ib.ReqCurrentTime{}); err != nil {
		return time.Time{}, fmt.Errorf("request current time: %w", err)
	}

	wait := d.timeout
	if wait <= 0 {
		wait = 10 * time.Second
	}
	select {
	case t := <-got:
		return t, nil
	case <-time.After(wait):
		return time.Time{}, fmt.Errorf("%w: no %s within %s", command.ErrTimeout, ib.KindCurrentTime, wait)
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
}

// lookup resolves the demo symbol, retrying when the remote is slow to answer.
func (d *demo) lookup(ctx context.Context) (ib.Contract, error) {
	res, err := command.InvokeWithRetry(ctx, func() *command.Command {
		return d.sess.Command(&ib.ReqMatchingSymbols{Pattern: d.symbol})
	}, d.retry)
	if err != nil {
		return ib.Contract{}, fmt.Errorf("match symbols: %w", err)
	}
	if err := res.Failure(); err != nil {
		return ib.Contract{}, err
	}

	samples, ok := res.Event.(*ib.SymbolSamples)
	if !ok || len(samples.Descriptions) == 0 {
		return ib.Contract{}, fmt.Errorf("no contract matches %q", d.symbol)
	}
	for _, desc := range samples.Descriptions {
		d.logger.Info("Matching contract", "contract", desc.Contract.String())
	}
	return samples.Descriptions[0].Contract, nil
}

func (d *demo) history(ctx context.Context, c ib.Contract) error {
	end := time.Now().UTC().Format("20060102 15:04:05")
	req := ib.NewHistoricalDataRequest(c.Symbol, c.SecType, "SMART", c.PrimaryExchange, end)

	res, err := d.sess.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("historical data: %w", err)
	}
	if err := res.Failure(); err != nil {
		return err
	}

	bars := stream.Items[*ib.HistoricalData](res.Stream)
	for _, bar := range bars {
		d.logger.Info("Bar", "symbol", c.Symbol, "date", bar.Date,
			"open", bar.Open, "high", bar.High, "low", bar.Low, "close", bar.Close, "volume", bar.Volume)
	}
	d.logger.Info("Historical data complete",
		"request", req.Description(), "bars", len(bars), "elapsed", res.Elapsed)
	return nil
}

func (d *demo) accountSummary(ctx context.Context) error {
	req := &ib.ReqAccountSummary{Group: "All", Tags: "NetLiquidation,BuyingPower"}
	res, err := d.sess.Call(ctx, req)
	if err != nil {
		return fmt.Errorf("account summary: %w", err)
	}
	if err := res.Failure(); err != nil {
		return err
	}
	for _, row := range stream.Items[*ib.AccountSummary](res.Stream) {
		d.logger.Info("Account value", "account", row.Account, "tag", row.Tag, "value", row.Value, "currency", row.Currency)
	}
	return nil
}
