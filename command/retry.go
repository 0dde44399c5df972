package command

import (
	"context"
	"errors"

	"github.com/c360/callbridge/pkg/retry"
)

// InvokeWithRetry invokes a fresh command from build until one does not time out.
// Each attempt registers a new request id. Only timeouts are retried; transmission
// errors and cancellation are returned at once.
func InvokeWithRetry(ctx context.Context, build func() *Command, cfg retry.Config) (Result, error) {
	var last *Command
	cfg.Retryable = func(err error) bool { return errors.Is(err, ErrTimeout) }
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error) {
		last.logger.Info("command retry",
			"call", last.call.Name(), "request_id", int64(last.RequestID()), "attempt", attempt, "error", err)
		last.metrics.RecordRetry(last.call.Name())
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return retry.DoWithResult(ctx, cfg, func() (Result, error) {
		last = build()
		return last.Invoke(ctx)
	})
}
