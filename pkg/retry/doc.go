// Package retry provides exponential backoff retry logic for transient failures.
//
// Do and DoWithResult run a function until it succeeds, the attempts run out, the
// context is cancelled, or the error is rejected by Config.Retryable or marked with
// NonRetryable.
//
// A synchronous call that timed out is the typical caller:
//
//	cfg := retry.Quick()
//	cfg.Retryable = func(err error) bool { return errors.Is(err, errs.ErrTimeout) }
//	res, err := retry.DoWithResult(ctx, cfg, func() (command.Result, error) {
//	    return command.New(cc, conn, build(), command.WithTimeout(time.Second)).Invoke(ctx)
//	})
//
// Each attempt builds a fresh command so it is registered under a fresh request id.
package retry
