// Package task defines the units of work exchanged with the remote API: outbound
// calls, inbound events, and the continuation chains that link follow-up work.
package task

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxSteps bounds a chain so a task that keeps returning successors cannot
// run forever.
const DefaultMaxSteps = 1000

// ErrStepLimit is returned when a chain exceeds its step budget.
var ErrStepLimit = errors.New("task chain exceeded step limit")

// Task is the smallest schedulable unit of work. Perform does its work and returns
// the task to run next, or nil when the chain ends. Perform never blocks waiting for
// a remote answer; blocking belongs to commands.
type Task interface {
	Perform(ctx context.Context) (Task, error)
}

// Describer is implemented by tasks that carry a human-readable description.
type Describer interface {
	Description() string
}

// Describe returns the task's description, falling back to its Go type.
func Describe(v any) string {
	if d, ok := v.(Describer); ok {
		return d.Description()
	}
	return fmt.Sprintf("%T", v)
}

// Func adapts a function to the Task interface.
type Func func(ctx context.Context) (Task, error)

// Perform calls f.
func (f Func) Perform(ctx context.Context) (Task, error) {
	return f(ctx)
}

// Chain steps through a continuation sequence one task at a time. A chain is
// single-use: once Next returns false it stays exhausted.
type Chain struct {
	next     Task
	current  Task
	steps    int
	maxSteps int
	err      error
	done     bool
}

// NewChain creates a chain starting at first. maxSteps <= 0 selects DefaultMaxSteps.
func NewChain(first Task, maxSteps int) *Chain {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Chain{next: first, maxSteps: maxSteps}
}

// Next performs the next task. It returns false when the chain has ended, failed,
// or the context is done; Err distinguishes the cases.
func (c *Chain) Next(ctx context.Context) bool {
	if c.done {
		return false
	}
	if c.next == nil {
		c.done = true
		return false
	}
	if err := ctx.Err(); err != nil {
		c.fail(err)
		return false
	}
	if c.steps >= c.maxSteps {
		c.fail(fmt.Errorf("%w (%d)", ErrStepLimit, c.maxSteps))
		return false
	}

	c.current = c.next
	c.steps++

	next, err := c.current.Perform(ctx)
	if err != nil {
		c.fail(fmt.Errorf("task %s: %w", Describe(c.current), err))
		return false
	}
	c.next = next
	return true
}

func (c *Chain) fail(err error) {
	c.err = err
	c.done = true
	c.next = nil
}

// Current returns the task most recently performed.
func (c *Chain) Current() Task { return c.current }

// Steps returns how many tasks have been performed.
func (c *Chain) Steps() int { return c.steps }

// Err returns the error that stopped the chain, if any.
func (c *Chain) Err() error { return c.err }

// Run drives the chain starting at first to completion.
func Run(ctx context.Context, first Task) error {
	c := NewChain(first, DefaultMaxSteps)
	for c.Next(ctx) {
	}
	return c.Err()
}
