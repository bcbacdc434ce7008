package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func appendStep(name string) Step {
	return StepFunc{StepName: name, Fn: func(_ context.Context, st State) (State, error) {
		order, _ := st["order"].([]string)
		st["order"] = append(order, name)
		return st, nil
	}}
}

func failingStep(name string, err error) Step {
	return StepFunc{StepName: name, Fn: func(_ context.Context, st State) (State, error) {
		return nil, err
	}}
}

// fakeSaver is a persisting step backed by an in-memory artifact map.
type fakeSaver struct {
	name       string
	artifacts  map[string]State
	overwrite  bool
	reloadable bool
	clear      bool
	writes     int
}

func (s *fakeSaver) Name() string { return s.name }

func (s *fakeSaver) Apply(_ context.Context, st State) (State, error) {
	s.writes++
	s.artifacts[ItemID(st)] = st.Clone()
	return st, nil
}

func (s *fakeSaver) IsDone(st State) bool {
	_, ok := s.artifacts[ItemID(st)]
	return ok
}

func (s *fakeSaver) Reloadable(State) bool      { return s.reloadable }
func (s *fakeSaver) Overwrites() bool           { return s.overwrite }
func (s *fakeSaver) ClearsOutput() bool         { return s.clear }
func (s *fakeSaver) Reload(st State) (State, error) {
	saved, ok := s.artifacts[ItemID(st)]
	if !ok {
		return nil, fmt.Errorf("no artifact for %s", ItemID(st))
	}
	return saved.Clone(), nil
}

func TestRun_StrictlySequential(t *testing.T) {
	p, err := New([]Step{appendStep("a"), appendStep("b"), appendStep("c")}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	res := p.Run(context.Background(), State{"id": "x"})
	if res.Status != StatusSucceeded {
		t.Fatalf("expected success, got %s", res.Status)
	}

	order := res.State["order"].([]string)
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("step order %v, want %v", order, want)
		}
	}

	history := res.State[HistoryKey].([]StepRecord)
	if len(history) != 3 || history[1].Name != "b" || history[1].Index != 1 {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestRun_FailureIsStructured(t *testing.T) {
	boom := errors.New("bad filter order")
	p, _ := New([]Step{appendStep("a"), failingStep("filter", boom), appendStep("c")}, Options{})

	res := p.Run(context.Background(), State{"id": "sub-01"})
	if res.Status != StatusFailed {
		t.Fatalf("expected failure, got %s", res.Status)
	}
	if res.Failure == nil {
		t.Fatal("failure must carry a StepFailure")
	}
	if res.Failure.Step != "filter" || res.Failure.Item != "sub-01" {
		t.Errorf("failure identity wrong: %+v", res.Failure)
	}
	if !errors.Is(res.Failure, boom) {
		t.Error("failure must wrap the underlying error")
	}
	if res.Failure.Fatal {
		t.Error("stop mode must not mark failures fatal")
	}

	// Step c must not have run.
	if order, _ := res.State["order"].([]string); len(order) != 1 {
		t.Errorf("downstream steps ran after failure: %v", order)
	}
}

func TestRun_OnErrorContinue(t *testing.T) {
	boom := errors.New("boom")
	p, _ := New([]Step{appendStep("a"), failingStep("flaky", boom), appendStep("c")},
		Options{OnError: OnErrorContinue})

	res := p.Run(context.Background(), State{"id": "x"})
	if res.Status != StatusSucceeded {
		t.Fatalf("expected success, got %s", res.Status)
	}
	order := res.State["order"].([]string)
	if len(order) != 2 || order[1] != "c" {
		t.Errorf("continue mode must run remaining steps on prior state: %v", order)
	}
}

func TestRun_OnErrorRaiseIsFatal(t *testing.T) {
	p, _ := New([]Step{failingStep("x", errors.New("boom"))}, Options{OnError: OnErrorRaise})

	res := p.Run(context.Background(), State{"id": "x"})
	if res.Status != StatusFailed || res.Failure == nil || !res.Failure.Fatal {
		t.Fatalf("raise mode must produce a fatal failure, got %+v", res)
	}
}

func TestRun_StepSkip(t *testing.T) {
	skip := StepFunc{StepName: "gate", Fn: func(_ context.Context, st State) (State, error) {
		return st, fmt.Errorf("nothing to do: %w", ErrSkip)
	}}
	p, _ := New([]Step{appendStep("a"), skip, appendStep("c")}, Options{})

	res := p.Run(context.Background(), State{"id": "x"})
	if res.Status != StatusSkipped {
		t.Fatalf("expected skip, got %s", res.Status)
	}
	if order := res.State["order"].([]string); len(order) != 1 {
		t.Errorf("steps after skip must not run: %v", order)
	}
}

func TestRun_SecondRunSkipsViaSaver(t *testing.T) {
	saver := &fakeSaver{name: "save", artifacts: map[string]State{}, reloadable: true}
	p, _ := New([]Step{appendStep("a"), saver}, Options{})

	item := func() State { return State{"id": "x"} }

	first := p.Run(context.Background(), item())
	if first.Status != StatusSucceeded || saver.writes != 1 {
		t.Fatalf("first run should write, got %s writes=%d", first.Status, saver.writes)
	}

	second := p.Run(context.Background(), item())
	if second.Status != StatusSkipped {
		t.Fatalf("second run should skip, got %s", second.Status)
	}
	if saver.writes != 1 {
		t.Errorf("second run must not write again, writes=%d", saver.writes)
	}
	// Skip must still forward the prior output.
	if _, ok := second.State["order"]; !ok {
		t.Error("skipped run should carry the reloaded state")
	}
}

func TestRun_ReloadResumesDownstream(t *testing.T) {
	saver := &fakeSaver{name: "save", artifacts: map[string]State{}, reloadable: true}
	downstream := appendStep("post")
	p, _ := New([]Step{appendStep("a"), saver, downstream}, Options{})

	first := p.Run(context.Background(), State{"id": "x"})
	if first.Status != StatusSucceeded {
		t.Fatal(first.Status)
	}

	second := p.Run(context.Background(), State{"id": "x"})
	if second.Status != StatusSucceeded {
		t.Fatalf("resume run should succeed, got %s", second.Status)
	}
	if saver.writes != 1 {
		t.Errorf("saver must not rewrite on resume, writes=%d", saver.writes)
	}
	order := second.State["order"].([]string)
	if order[len(order)-1] != "post" {
		t.Errorf("downstream step must run on reloaded state: %v", order)
	}
}

func TestRun_DoneNotReloadableSkips(t *testing.T) {
	saver := &fakeSaver{name: "save", artifacts: map[string]State{}, reloadable: false}
	p, _ := New([]Step{appendStep("a"), saver}, Options{})

	p.Run(context.Background(), State{"id": "x"})
	second := p.Run(context.Background(), State{"id": "x"})
	if second.Status != StatusSkipped {
		t.Fatalf("done-but-not-reloadable final step must skip, got %s", second.Status)
	}
}

func TestRun_OverwriteRecomputes(t *testing.T) {
	saver := &fakeSaver{name: "save", artifacts: map[string]State{}, reloadable: true, overwrite: true}
	p, _ := New([]Step{appendStep("a"), saver}, Options{})

	p.Run(context.Background(), State{"id": "x"})
	second := p.Run(context.Background(), State{"id": "x"})
	if second.Status != StatusSucceeded || saver.writes != 2 {
		t.Fatalf("overwrite must rerun the saver: %s writes=%d", second.Status, saver.writes)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := New([]Step{appendStep("a")}, Options{})
	res := p.Run(ctx, State{"id": "x"})
	if res.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", res.Status)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Error("empty step list must be rejected")
	}
	if _, err := New([]Step{appendStep("a")}, Options{OnError: "explode"}); err == nil {
		t.Error("invalid on_error must be rejected")
	}
	if _, err := ParseOnError("continue"); err != nil {
		t.Error(err)
	}
	if _, err := ParseOnError("explode"); err == nil {
		t.Error("invalid on_error must be rejected")
	}
}

func TestItemID(t *testing.T) {
	if got := ItemID(State{"id": "sub-01"}); got != "sub-01" {
		t.Errorf("id key ignored: %q", got)
	}
	if got := ItemID(State{"path": "/data/sub-02.fif"}); got != "sub-02.fif" {
		t.Errorf("path basename not used: %q", got)
	}

	// Items without id/path derive their identity from content: same key
	// count with different values must not collide.
	a := ItemID(State{"n": 1, "label": "first"})
	b := ItemID(State{"n": 2, "label": "second"})
	if a == b {
		t.Fatalf("distinct items share identity %q", a)
	}

	// Identity is deterministic and ignores the step history.
	withHistory := State{"n": 1, "label": "first"}
	appendHistory(withHistory, StepRecord{Index: 0, Name: "x"})
	if got := ItemID(withHistory); got != a {
		t.Errorf("identity changed with history: %q vs %q", got, a)
	}
}
