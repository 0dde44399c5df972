package wire

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/task"
)

type decodeFunc func(c Codec, env Envelope) (task.EventTask, error)

// Registry maps event type names to decoders. Its key set is the closed set of
// event kinds a connection accepts.
type Registry struct {
	mu       sync.RWMutex
	decoders map[task.EventKind]decodeFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[task.EventKind]decodeFunc)}
}

// Register adds kind to r. build receives the correlation base taken from the
// envelope and the decoded body.
func Register[T any](r *Registry, kind task.EventKind, build func(base task.EventBase, body T) task.EventTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[kind] = func(c Codec, env Envelope) (task.EventTask, error) {
		var body T
		if err := env.Body(c, &body); err != nil {
			return nil, err
		}
		return build(task.Correlated(kind, env.RequestID()), body), nil
	}
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []task.EventKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.decoders))
}

// Decode turns a frame into an event. Unknown types fail with ErrUnknownEvent.
func (r *Registry) Decode(c Codec, frame []byte) (task.EventTask, error) {
	env, err := Open(c, frame)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	decode, ok := r.decoders[task.EventKind(env.Type)]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.WrapInvalid(fmt.Errorf("%w: %q", errs.ErrUnknownEvent, env.Type),
			"Registry", "Decode", "look up event type")
	}
	return decode(c, env)
}
