package builtin

import (
	"context"
	"testing"

	"neuropipe/internal/loader"
	"neuropipe/internal/pipeline"
	"neuropipe/internal/registry"
	"neuropipe/internal/save"
	"neuropipe/internal/steps"
)

func resolve(t *testing.T, name string, args registry.Args) any {
	t.Helper()
	builder, err := registry.NewResolver(Scope()).Resolve(name)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := builder(args)
	if err != nil {
		t.Fatal(err)
	}
	return obj
}

func TestGlobLoaderBuilder(t *testing.T) {
	obj := resolve(t, "GlobLoader", registry.Args{
		"patterns":   "/data/*.fif",
		"extensions": []any{".fif"},
		"key":        "eeg_path",
	})
	gl, ok := obj.(*loader.GlobLoader)
	if !ok {
		t.Fatalf("got %T", obj)
	}
	if len(gl.Patterns) != 1 || gl.Key != "eeg_path" {
		t.Errorf("unexpected loader: %+v", gl)
	}
}

func TestListLoaderBuilder(t *testing.T) {
	obj := resolve(t, "ListLoader", registry.Args{
		"items": []any{map[string]any{"id": "x"}},
	})
	ll := obj.(*loader.ListLoader)
	items, err := ll.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0]["id"] != "x" {
		t.Errorf("unexpected items: %v", items)
	}
}

func TestStepBuilders(t *testing.T) {
	if _, ok := resolve(t, "Assign", registry.Args{
		"fields": map[string]any{"subject": "s01"},
	}).(*steps.Assign); !ok {
		t.Error("Assign built the wrong type")
	}
	if _, ok := resolve(t, "Rename", registry.Args{
		"mapping": map[string]any{"old": "new"},
	}).(*steps.Rename); !ok {
		t.Error("Rename built the wrong type")
	}
	if _, ok := resolve(t, "Select", registry.Args{
		"keys": []any{"id"},
	}).(*steps.Select); !ok {
		t.Error("Select built the wrong type")
	}
	obj := resolve(t, "Scale", registry.Args{"key": "n", "factor": 2})
	if s := obj.(*steps.Scale); s.Factor != 2 {
		t.Errorf("factor = %v", s.Factor)
	}
}

func TestSaveBuilder(t *testing.T) {
	obj := resolve(t, "Save", registry.Args{
		"dir":       t.TempDir(),
		"keys":      []any{"n"},
		"overwrite": true,
	})
	if _, ok := obj.(*save.Save); !ok {
		t.Fatalf("got %T", obj)
	}
}

func TestPipelineBuilder(t *testing.T) {
	step := &steps.Assign{Fields: map[string]any{"a": 1}}

	obj := resolve(t, "Pipeline", registry.Args{
		"steps":    []any{step},
		"on_error": "continue",
	})
	p, ok := obj.(*pipeline.Pipeline)
	if !ok {
		t.Fatalf("got %T", obj)
	}
	if len(p.Steps()) != 1 {
		t.Errorf("steps = %d", len(p.Steps()))
	}

	// Positional form.
	obj = resolve(t, "Pipeline", registry.Args{"*args": []any{step}})
	if len(obj.(*pipeline.Pipeline).Steps()) != 1 {
		t.Error("positional steps not accepted")
	}
}

func TestBuilderArgumentValidation(t *testing.T) {
	builder, err := registry.NewResolver(Scope()).Resolve("Scale")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := builder(registry.Args{"key": "n"}); err == nil {
		t.Error("missing required argument must fail")
	}
	if _, err := builder(registry.Args{"key": "n", "factor": 2, "typo": true}); err == nil {
		t.Error("unexpected argument must fail")
	}
	if _, err := builder(registry.Args{"key": "n", "factor": "two"}); err == nil {
		t.Error("wrong argument type must fail")
	}
}
