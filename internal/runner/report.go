package runner

import (
	"fmt"
	"strings"
	"time"

	"neuropipe/internal/pipeline"
)

// Record is one item's terminal outcome within a run. Exactly one Record
// exists per discovered item per pipeline.
type Record struct {
	Loader   string
	Item     string
	Status   pipeline.Status
	Step     string // failing step, when Status is failed
	Err      error  // underlying cause, when Status is failed
	Duration time.Duration
}

// Summary counts terminal outcomes.
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Cancelled int
}

// Total returns the number of items the summary covers.
func (s Summary) Total() int {
	return s.Succeeded + s.Skipped + s.Failed + s.Cancelled
}

// Report aggregates every item outcome of one run.
type Report struct {
	RunID   string
	Records []Record
	Started time.Time
	Ended   time.Time
}

// Summary tallies outcomes across all loaders.
func (r *Report) Summary() Summary {
	return r.summarize(func(Record) bool { return true })
}

// LoaderSummary tallies outcomes for one loader.
func (r *Report) LoaderSummary(loader string) Summary {
	return r.summarize(func(rec Record) bool { return rec.Loader == loader })
}

func (r *Report) summarize(keep func(Record) bool) Summary {
	var s Summary
	for _, rec := range r.Records {
		if !keep(rec) {
			continue
		}
		switch rec.Status {
		case pipeline.StatusSucceeded:
			s.Succeeded++
		case pipeline.StatusSkipped:
			s.Skipped++
		case pipeline.StatusFailed:
			s.Failed++
		case pipeline.StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Failures returns the failed records, each carrying item, step and cause,
// enough to diagnose without re-running.
func (r *Report) Failures() []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.Status == pipeline.StatusFailed {
			out = append(out, rec)
		}
	}
	return out
}

// String renders a human-readable run summary.
func (r *Report) String() string {
	s := r.Summary()
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d items (%d succeeded, %d skipped, %d failed, %d cancelled)",
		r.RunID, s.Total(), s.Succeeded, s.Skipped, s.Failed, s.Cancelled)
	for _, rec := range r.Failures() {
		fmt.Fprintf(&b, "\n  FAILED %s/%s at step %q: %v", rec.Loader, rec.Item, rec.Step, rec.Err)
	}
	return b.String()
}
