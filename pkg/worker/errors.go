package worker

import (
	"errors"
	"fmt"

	errs "github.com/c360/callbridge/errors"
)

// Sentinel errors for worker pool operations
var (
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrNilProcessor       = errors.New("processor function cannot be nil")
	ErrStopTimeout        = errors.New("timeout waiting for workers to stop")

	// ErrQueueFull is transient: the caller may resubmit once workers catch up.
	ErrQueueFull = fmt.Errorf("worker pool: %w", errs.ErrQueueFull)
)

// PanicError reports a processor that panicked on a work item.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker: processor panicked: %v", e.Value)
}
