package config

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"neuropipe/internal/registry"
)

type fakeStep struct {
	Name  string
	Gain  float64
	Tags  []string
	Inner any
}

func testResolver(t *testing.T) *registry.Resolver {
	t.Helper()
	scope := registry.NewScope("neuropipe")
	scope.Register("FakeStep", func(args registry.Args) (any, error) {
		name, err := args.String("name", "")
		if err != nil {
			return nil, err
		}
		gain, err := args.Float("gain", 1.0)
		if err != nil {
			return nil, err
		}
		tags, err := args.Strings("tags")
		if err != nil {
			return nil, err
		}
		return &fakeStep{Name: name, Gain: gain, Tags: tags, Inner: args["inner"]}, nil
	})
	scope.Register("Broken", func(registry.Args) (any, error) {
		return nil, fmt.Errorf("boom")
	})
	return registry.NewResolver(scope)
}

func TestExpand_ScalarsAndPlainContainers(t *testing.T) {
	e := &Expander{Resolver: testResolver(t)}

	node := map[string]any{
		"rate":  float64(64),
		"name":  "eeg",
		"flags": []any{true, false},
		"nested": map[string]any{
			"keep": "order-independent",
		},
	}

	got, err := e.Expand(node)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(node, got); diff != "" {
		t.Errorf("plain tree should survive expansion unchanged (-want +got):\n%s", diff)
	}
}

func TestExpand_CallableSpec(t *testing.T) {
	e := &Expander{Resolver: testResolver(t)}

	got, err := e.Expand(map[string]any{
		"callable": "FakeStep",
		"name":     "envelope",
		"gain":     2.5,
		"tags":     []any{"a", "b"},
	})
	if err != nil {
		t.Fatal(err)
	}

	step, ok := got.(*fakeStep)
	if !ok {
		t.Fatalf("expected *fakeStep, got %T", got)
	}
	want := &fakeStep{Name: "envelope", Gain: 2.5, Tags: []string{"a", "b"}}
	if diff := cmp.Diff(want, step); diff != "" {
		t.Errorf("unexpected step (-want +got):\n%s", diff)
	}
}

func TestExpand_NestedSpecInsideSequence(t *testing.T) {
	e := &Expander{Resolver: testResolver(t)}

	got, err := e.Expand([]any{
		map[string]any{"callable": "FakeStep", "name": "one"},
		map[string]any{"callable": "FakeStep", "name": "two", "inner": map[string]any{
			"callable": "FakeStep", "name": "deep",
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	seq := got.([]any)
	if len(seq) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(seq))
	}
	if seq[0].(*fakeStep).Name != "one" {
		t.Errorf("order not preserved: %+v", seq[0])
	}
	inner := seq[1].(*fakeStep).Inner
	if inner.(*fakeStep).Name != "deep" {
		t.Errorf("nested spec not expanded: %+v", inner)
	}
}

func TestExpand_PointerReturnsUnappliedBuilder(t *testing.T) {
	r := testResolver(t)
	e := &Expander{Resolver: r}

	got, err := e.Expand(map[string]any{
		"callable":   "FakeStep",
		"is_pointer": true,
		// Sibling keys must not be consumed as arguments.
		"name": "ignored",
	})
	if err != nil {
		t.Fatal(err)
	}

	builder, ok := got.(registry.Builder)
	if !ok {
		t.Fatalf("expected registry.Builder, got %T", got)
	}
	direct, err := r.Resolve("FakeStep")
	if err != nil {
		t.Fatal(err)
	}
	if reflect.ValueOf(builder).Pointer() != reflect.ValueOf(direct).Pointer() {
		t.Error("pointer spec must yield the same builder as direct resolution")
	}
}

func TestExpand_PointerFalseInvokes(t *testing.T) {
	e := &Expander{Resolver: testResolver(t)}

	got, err := e.Expand(map[string]any{
		"callable":   "FakeStep",
		"is_pointer": false,
		"name":       "applied",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(*fakeStep); !ok {
		t.Fatalf("is_pointer=false must invoke the builder, got %T", got)
	}
}

func TestExpand_PointerMustBeBool(t *testing.T) {
	e := &Expander{Resolver: testResolver(t)}

	_, err := e.Expand(map[string]any{
		"steps": []any{map[string]any{
			"callable":   "FakeStep",
			"is_pointer": "true",
		}},
	})
	if err == nil {
		t.Fatal("string is_pointer must be rejected, not dropped")
	}
	var spec *SpecError
	if !errors.As(err, &spec) {
		t.Fatalf("expected SpecError, got %v", err)
	}
	if spec.Path != "steps[0]" {
		t.Errorf("expected path 'steps[0]', got %q", spec.Path)
	}
}

func TestExpand_UnknownCallable(t *testing.T) {
	e := &Expander{Resolver: testResolver(t)}

	_, err := e.Expand(map[string]any{
		"steps": []any{
			map[string]any{"callable": "NoSuchStep"},
		},
	})
	if err == nil {
		t.Fatal("expected error")
	}

	var nf *registry.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	var spec *SpecError
	if !errors.As(err, &spec) {
		t.Fatalf("expected SpecError wrapper, got %v", err)
	}
	if spec.Path != "steps[0]" {
		t.Errorf("expected key path steps[0], got %q", spec.Path)
	}
}

func TestExpand_BuilderFailureCarriesPath(t *testing.T) {
	e := &Expander{Resolver: testResolver(t)}

	_, err := e.Expand(map[string]any{
		"bad": map[string]any{"callable": "Broken"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var spec *SpecError
	if !errors.As(err, &spec) {
		t.Fatalf("expected SpecError, got %v", err)
	}
	if spec.Path != "bad" {
		t.Errorf("expected path 'bad', got %q", spec.Path)
	}
}

func TestExpand_MaxDepth(t *testing.T) {
	e := &Expander{Resolver: testResolver(t), MaxDepth: 4}

	node := any("leaf")
	for i := 0; i < 10; i++ {
		node = map[string]any{"next": node}
	}

	_, err := e.Expand(node)
	var deep *MaxDepthError
	if !errors.As(err, &deep) {
		t.Fatalf("expected MaxDepthError, got %v", err)
	}
}
