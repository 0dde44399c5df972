// Package stream holds multi-event results: zero or more intermediate events
// followed by exactly one terminal event.
package stream

import (
	"context"
	"slices"
	"sync"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/task"
)

// ErrIncomplete is returned by Drain when the owning command stopped waiting before
// a terminal event arrived. The buffered events are still returned.
var ErrIncomplete = errs.ErrIncompleteStream

// Spec declares which event kinds end a stream.
type Spec struct {
	Terminals []task.EventKind
}

// IsTerminal reports whether kind ends the stream.
func (s Spec) IsTerminal(kind task.EventKind) bool {
	return slices.Contains(s.Terminals, kind)
}

// Channel buffers the events of one streaming request. Appends are visible to
// concurrent readers immediately. Once terminated or sealed nothing more is appended.
type Channel struct {
	spec Spec

	mu         sync.Mutex
	events     []task.EventTask
	terminal   task.EventTask
	terminated bool
	sealed     bool
	changed    chan struct{}
	done       chan struct{}
}

// New creates an open channel.
func New(spec Spec) *Channel {
	return &Channel{
		spec:    spec,
		changed: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Spec returns the channel's terminal declaration.
func (c *Channel) Spec() Spec { return c.spec }

// Append buffers an intermediate event. It returns false once the stream is
// terminated or sealed.
func (c *Channel) Append(ev task.EventTask) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finishedLocked() {
		return false
	}
	c.events = append(c.events, ev)
	c.signalLocked()
	return true
}

// Terminate records the terminal event and completes the stream. Only the first
// call has effect.
func (c *Channel) Terminate(ev task.EventTask) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finishedLocked() {
		return false
	}
	c.terminal = ev
	c.terminated = true
	close(c.done)
	c.signalLocked()
	return true
}

// Seal closes the stream without a terminal event. The buffered events remain
// readable but the stream reports incomplete.
func (c *Channel) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finishedLocked() {
		return
	}
	c.sealed = true
	close(c.done)
	c.signalLocked()
}

func (c *Channel) finishedLocked() bool { return c.terminated || c.sealed }

func (c *Channel) signalLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Events returns a snapshot of the intermediate events in delivery order.
func (c *Channel) Events() []task.EventTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

// Len returns the number of intermediate events buffered so far.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Terminated reports whether the terminal event arrived.
func (c *Channel) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// Complete is an alias of Terminated for result consumers.
func (c *Channel) Complete() bool { return c.Terminated() }

// Terminal returns the terminal event, if it arrived.
func (c *Channel) Terminal() (task.EventTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal, c.terminated
}

// Done is closed when the stream is terminated or sealed.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Subscribe replays the buffered events and then follows live ones. The returned
// channel closes after the last event once the stream is finished, or when ctx ends.
func (c *Channel) Subscribe(ctx context.Context) <-chan task.EventTask {
	out := make(chan task.EventTask)
	go func() {
		defer close(out)
		next := 0
		for {
			c.mu.Lock()
			batch := slices.Clone(c.events[next:])
			finished := c.finishedLocked()
			changed := c.changed
			c.mu.Unlock()

			for _, ev := range batch {
				select {
				case out <- ev:
					next++
				case <-ctx.Done():
					return
				}
			}
			if finished {
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Drain waits until the stream finishes and returns its intermediate events. A
// sealed stream yields ErrIncomplete alongside the partial events.
func (c *Channel) Drain(ctx context.Context) ([]task.EventTask, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return c.Events(), ctx.Err()
	}
	if !c.Terminated() {
		return c.Events(), ErrIncomplete
	}
	return c.Events(), nil
}

// Items returns the intermediate events of type T in delivery order.
func Items[T task.EventTask](c *Channel) []T {
	events := c.Events()
	items := make([]T, 0, len(events))
	for _, ev := range events {
		if item, ok := ev.(T); ok {
			items = append(items, item)
		}
	}
	return items
}

// TerminalAs returns the terminal event when it arrived and has type T.
func TerminalAs[T task.EventTask](c *Channel) (T, bool) {
	ev, ok := c.Terminal()
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := ev.(T)
	return t, ok
}
