// Package errors provides standardized error handling for callbridge components.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: timeouts, lost or closed connections, rate limiting (retry may help)
//   - Invalid: malformed frames, unknown event types, misuse of a command (do not retry)
//   - Fatal: invariant violations such as a duplicate request id (stop processing)
//
// Classification works through errors.Is/errors.As, so sentinels stay matchable
// after wrapping:
//
//	if err := cc.Register(id, cmd); err != nil {
//	    return errors.WrapFatal(err, "Command", "Invoke", "register request")
//	}
//
// # Correlation Sentinels
//
// ErrTimeout is the only failure a synchronous call reports on its own; the caller
// decides whether to retry the whole command with a fresh request id. ErrStrayEvent is
// never returned to a caller: a late or unmatched answer is logged and dropped.
// ErrDuplicateRequestID signals a broken id allocator and is always fatal.
//
// # Wrapping Pattern
//
// All wrapping follows "component.method: action failed: cause":
//
//	errors.Wrap(err, "Session", "Run", "receive frame")
package errors
