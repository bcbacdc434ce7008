// Package pipeline applies an ordered sequence of steps to one item at a
// time. Execution within an item is strictly sequential: step i's output
// State is exactly step i+1's input. Failures are surfaced as structured
// values, never as uncontrolled panics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"neuropipe/internal/logging"
)

// OnError selects what a step failure does to the rest of the item's run.
type OnError string

const (
	// OnErrorStop aborts the failing item and reports it; sibling items
	// are unaffected. This is the default.
	OnErrorStop OnError = "stop"
	// OnErrorContinue logs the failure, keeps the pre-step State, and runs
	// the remaining steps.
	OnErrorContinue OnError = "continue"
	// OnErrorRaise marks the failure fatal so the runner aborts the whole
	// run, not just this item.
	OnErrorRaise OnError = "raise"
)

// ParseOnError validates a configured on_error value.
func ParseOnError(value string) (OnError, error) {
	switch OnError(value) {
	case OnErrorStop, OnErrorContinue, OnErrorRaise:
		return OnError(value), nil
	case "":
		return OnErrorStop, nil
	default:
		return "", fmt.Errorf("invalid on_error %q (valid: stop, continue, raise)", value)
	}
}

// Status is the terminal outcome of one item's pipeline run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StepFailure identifies which step failed on which item and why.
type StepFailure struct {
	Step string
	Item string
	Err  error

	// Fatal requests the runner abort the whole run (on_error: raise).
	Fatal bool
}

func (f *StepFailure) Error() string {
	return fmt.Sprintf("step %q failed on item %q: %v", f.Step, f.Item, f.Err)
}

func (f *StepFailure) Unwrap() error { return f.Err }

// Result is one item's terminal outcome.
type Result struct {
	Status  Status
	State   State
	Failure *StepFailure
}

// Pipeline is an ordered sequence of steps bound to a loader by name.
type Pipeline struct {
	steps   []Step
	onError OnError
}

// Options tune pipeline behavior beyond the step sequence.
type Options struct {
	OnError OnError
}

// New builds a pipeline over steps.
func New(steps []Step, opts Options) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, errors.New("pipeline needs at least one step")
	}
	onError := opts.OnError
	if onError == "" {
		onError = OnErrorStop
	}
	switch onError {
	case OnErrorStop, OnErrorContinue, OnErrorRaise:
	default:
		return nil, fmt.Errorf("invalid on_error %q", onError)
	}
	return &Pipeline{steps: steps, onError: onError}, nil
}

// Steps returns the pipeline's step sequence.
func (p *Pipeline) Steps() []Step { return p.steps }

// Run applies the pipeline to one item and returns its terminal outcome.
// The item's State is owned exclusively by this call for its duration.
func (p *Pipeline) Run(ctx context.Context, item State) *Result {
	logger := logging.New("pipeline")
	itemID := ItemID(item)

	steps, state, skipped := p.checkReload(item, logger)
	if skipped {
		logger.Info("artifact already produced, skipping item", "item", itemID)
		return &Result{Status: StatusSkipped, State: state}
	}

	for index, step := range steps {
		if err := ctx.Err(); err != nil {
			return &Result{Status: StatusCancelled, State: state}
		}

		start := time.Now()
		logger.Debug("running step", "item", itemID, "step", step.Name(), "index", index)

		next, err := step.Apply(ctx, state)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			state = next
		case errors.Is(err, ErrSkip):
			appendHistory(state, StepRecord{Index: index, Name: step.Name(), Duration: elapsed})
			return &Result{Status: StatusSkipped, State: state}
		case p.onError == OnErrorContinue:
			logger.Error("step failed, continuing with previous state",
				"item", itemID, "step", step.Name(), "error", err)
		default:
			return &Result{
				Status: StatusFailed,
				State:  state,
				Failure: &StepFailure{
					Step:  step.Name(),
					Item:  itemID,
					Err:   err,
					Fatal: p.onError == OnErrorRaise,
				},
			}
		}

		appendHistory(state, StepRecord{Index: index, Name: step.Name(), Duration: elapsed})
		logger.Debug("finished step", "item", itemID, "step", step.Name(), "duration", elapsed)
	}

	return &Result{Status: StatusSucceeded, State: state}
}

// checkReload scans the steps from the end for a persisting step whose
// artifact already exists. When the artifact can be read back, execution
// resumes after that step with the reloaded State; when it cannot (or the
// step clears its output), there is nothing downstream can use and the item
// is a skip.
func (p *Pipeline) checkReload(item State, logger *slog.Logger) ([]Step, State, bool) {
	for reverse := range p.steps {
		index := len(p.steps) - reverse - 1
		saver, ok := p.steps[index].(Saver)
		if !ok {
			continue
		}
		if saver.Overwrites() || !saver.IsDone(item) {
			continue
		}
		if saver.Reloadable(item) && !saver.ClearsOutput() {
			reloaded, err := saver.Reload(item)
			if err != nil {
				logger.Warn("previously saved data could not be reloaded, recomputing",
					"item", ItemID(item), "step", saver.Name(), "error", err)
				continue
			}
			rest := p.steps[index+1:]
			if len(rest) == 0 {
				// Resuming after the final step: the run is a pure replay.
				return nil, reloaded, true
			}
			logger.Info("reloaded previously saved data",
				"item", ItemID(item), "step", saver.Name(), "remaining_steps", len(rest))
			return rest, reloaded, false
		}
		if reverse == 0 {
			// Final step is done but not reloadable: nothing left to do.
			return nil, item, true
		}
	}
	return p.steps, item, false
}
