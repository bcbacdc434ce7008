// Package runner executes (loader, pipeline) pairs: it expands each loader
// into its items, dispatches every item through the pipeline on a bounded
// worker pool, isolates per-item failures, and reports one terminal outcome
// per item.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"neuropipe/internal/loader"
	"neuropipe/internal/logging"
	"neuropipe/internal/pipeline"
	"neuropipe/internal/store"
)

// Pair binds a pipeline to the loader that feeds it.
type Pair struct {
	LoaderName string
	Loader     loader.DataLoader
	Pipeline   *pipeline.Pipeline
}

// Options configure run execution.
type Options struct {
	// Workers bounds concurrent items per loader; defaults to the number
	// of processing units.
	Workers int

	// FailFast cancels a loader's not-yet-started items after the first
	// failure instead of attempting them.
	FailFast bool
}

// Runner drives pipelines over their loaders' items.
type Runner struct {
	opts  Options
	store store.Store // optional run-record persistence
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Runner{opts: opts}
}

// WithStore persists run records to st as the run progresses.
func (r *Runner) WithStore(st store.Store) *Runner {
	r.store = st
	return r
}

// Workers returns the configured worker bound.
func (r *Runner) Workers() int { return r.opts.Workers }

// Run processes every pair in order. Items within a pair run concurrently up
// to the worker bound; the runner waits for a pair's items to finish before
// reporting that loader's summary and moving on. The returned Report always
// covers every dispatched item, also when err is non-nil.
func (r *Runner) Run(ctx context.Context, pairs []Pair) (*Report, error) {
	logger := logging.New("runner")
	report := &Report{RunID: uuid.NewString(), Started: time.Now()}

	if r.store != nil {
		if err := r.store.CreateRun(report.RunID, report.Started); err != nil {
			return report, fmt.Errorf("record run start: %w", err)
		}
	}

	var runErr error
	for index, pair := range pairs {
		logger.Info("pipeline starting",
			"pipeline", fmt.Sprintf("%d/%d", index+1, len(pairs)), "loader", pair.LoaderName)

		records, fatal, err := r.runPair(ctx, pair, logger)
		report.Records = append(report.Records, records...)

		if err != nil {
			runErr = err
			break
		}

		s := report.LoaderSummary(pair.LoaderName)
		logger.Info("pipeline finished", "loader", pair.LoaderName,
			"succeeded", s.Succeeded, "skipped", s.Skipped,
			"failed", s.Failed, "cancelled", s.Cancelled)

		if fatal {
			runErr = fmt.Errorf("run aborted: a step with on_error=raise failed")
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
	}

	report.Ended = time.Now()
	if r.store != nil {
		if err := r.persist(report); err != nil {
			logger.Error("failed to persist run records", "error", err)
		}
	}

	s := report.Summary()
	logger.Info("run complete", "run_id", report.RunID, "items", s.Total(),
		"succeeded", s.Succeeded, "skipped", s.Skipped,
		"failed", s.Failed, "cancelled", s.Cancelled)
	for _, rec := range report.Failures() {
		logger.Error("item failed", "loader", rec.Loader, "item", rec.Item,
			"step", rec.Step, "error", rec.Err)
	}

	return report, runErr
}

// runPair dispatches one loader's items through its pipeline. fatal is true
// when a failure demands the whole run abort.
func (r *Runner) runPair(ctx context.Context, pair Pair, logger *slog.Logger) ([]Record, bool, error) {
	items, err := pair.Loader.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("loader %q: %w", pair.LoaderName, err)
	}

	records := make([]Record, len(items))
	total := len(items)
	var done atomic.Int64
	var fatal atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			itemID := pipeline.ItemID(item)

			// Fail-fast: items not yet started when the group context
			// is cancelled are recorded as cancelled, not attempted.
			if gctx.Err() != nil {
				records[i] = Record{Loader: pair.LoaderName, Item: itemID,
					Status: pipeline.StatusCancelled}
				return nil
			}

			// Started items run on the caller's context: a sibling's
			// failure cancels only pending items, while caller
			// cancellation (e.g. SIGINT) still reaches in-flight work.
			start := time.Now()
			res := pair.Pipeline.Run(ctx, item)
			rec := Record{
				Loader:   pair.LoaderName,
				Item:     itemID,
				Status:   res.Status,
				Duration: time.Since(start),
			}
			if res.Failure != nil {
				rec.Step = res.Failure.Step
				rec.Err = res.Failure.Err
				if res.Failure.Fatal {
					fatal.Store(true)
				}
			}
			records[i] = rec

			logger.Info("progress",
				"loader", pair.LoaderName,
				"done", fmt.Sprintf("%d/%d", done.Add(1), total),
				"item", itemID, "status", string(res.Status))

			if res.Status == pipeline.StatusFailed && (r.opts.FailFast || fatal.Load()) {
				// Cancel the group; the failure itself lives in records.
				return res.Failure
			}
			return nil
		})
	}

	// Join barrier: the pair's summary is only reported once every
	// dispatched item has a terminal outcome.
	_ = g.Wait()

	return records, fatal.Load(), nil
}

func (r *Runner) persist(report *Report) error {
	for _, rec := range report.Records {
		cause := ""
		if rec.Err != nil {
			cause = rec.Err.Error()
		}
		if err := r.store.AddRecord(report.RunID, store.Record{
			Loader:   rec.Loader,
			Item:     rec.Item,
			Status:   string(rec.Status),
			Step:     rec.Step,
			Cause:    cause,
			Duration: rec.Duration,
		}); err != nil {
			return err
		}
	}
	s := report.Summary()
	return r.store.FinishRun(report.RunID, report.Ended, store.Counts{
		Succeeded: s.Succeeded,
		Skipped:   s.Skipped,
		Failed:    s.Failed,
		Cancelled: s.Cancelled,
	})
}
