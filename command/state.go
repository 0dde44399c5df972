package command

// State is a command's position in its lifecycle.
type State int32

const (
	// Created is the state before Invoke.
	Created State = iota
	// Registered means the request id is pending and the call was sent.
	Registered
	// Completed means the answer (or the terminal stream event) arrived, or a
	// fire-and-forget call was sent.
	Completed
	// TimedOut means the deadline passed before an answer.
	TimedOut
	// Failed means transmission failed, the context was cancelled, or the
	// connection closed.
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Registered:
		return "registered"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == Completed || s == TimedOut || s == Failed
}
