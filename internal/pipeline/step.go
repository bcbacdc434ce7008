package pipeline

import (
	"context"
	"errors"
)

// Step is one transformation in a pipeline. Apply receives the item's State,
// mutates or replaces it, and returns the State the next step will see.
// Returning ErrSkip (possibly wrapped) declares the remainder of the
// pipeline a no-op for this item.
type Step interface {
	Name() string
	Apply(ctx context.Context, state State) (State, error)
}

// ErrSkip is returned by a step to end an item's pipeline run early with a
// "skipped" outcome instead of a failure. The canonical case is a persisting
// step whose target artifact already exists with overwrite disabled and no
// way to forward the prior output.
var ErrSkip = errors.New("item skipped")

// Saver is the contract every persisting step honors: before writing, check
// the deterministic item-derived target; when it exists and overwrite is
// disabled, skip the work and forward the prior output (Reload) or end the
// item early when forwarding is impossible.
type Saver interface {
	Step

	// IsDone reports whether the step's artifact for this item already
	// exists on stable storage.
	IsDone(state State) bool

	// Reloadable reports whether the existing artifact can be read back
	// into a State for downstream steps.
	Reloadable(state State) bool

	// Reload reads the prior output back into the item's State.
	Reload(state State) (State, error)

	// Overwrites reports whether the step was configured to ignore
	// existing artifacts and write again.
	Overwrites() bool

	// ClearsOutput reports whether the step discards the State after
	// saving (nothing downstream can use the result).
	ClearsOutput() bool
}

// StepFunc adapts a function to the Step interface; handy in tests and for
// small inline steps.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, state State) (State, error)
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Apply(ctx context.Context, state State) (State, error) {
	return s.Fn(ctx, state)
}
