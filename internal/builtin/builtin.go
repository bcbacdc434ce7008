// Package builtin binds the engine's own loaders and steps into a registry
// scope. The table is explicit: every name a configuration can resolve is
// registered here, there is no runtime discovery.
package builtin

import (
	"fmt"

	"neuropipe/internal/config"
	"neuropipe/internal/loader"
	"neuropipe/internal/pipeline"
	"neuropipe/internal/registry"
	"neuropipe/internal/save"
	"neuropipe/internal/steps"
)

// ScopeName is the qualification prefix of the builtin scope.
const ScopeName = "neuropipe"

// Scope builds the builtin registration table.
func Scope() *registry.Scope {
	s := registry.NewScope(ScopeName)
	s.Register("GlobLoader", buildGlobLoader)
	s.Register("ListLoader", buildListLoader)
	s.Register("Assign", buildAssign)
	s.Register("Rename", buildRename)
	s.Register("Select", buildSelect)
	s.Register("Scale", buildScale)
	s.Register("Save", buildSave)
	s.Register("Pipeline", buildPipeline)
	return s
}

func buildGlobLoader(args registry.Args) (any, error) {
	if err := args.Expect([]string{"patterns"}, "key", "extensions"); err != nil {
		return nil, err
	}
	patterns, err := args.Strings("patterns")
	if err != nil {
		return nil, err
	}
	key, err := args.String("key", "")
	if err != nil {
		return nil, err
	}
	extensions, err := args.Strings("extensions")
	if err != nil {
		return nil, err
	}
	return &loader.GlobLoader{Patterns: patterns, Key: key, Extensions: extensions}, nil
}

func buildListLoader(args registry.Args) (any, error) {
	if err := args.Expect([]string{"items"}); err != nil {
		return nil, err
	}
	items := args.List("items")
	states := make([]pipeline.State, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("items[%d]: expected a mapping, got %T", i, item)
		}
		states[i] = pipeline.State(m)
	}
	return &loader.ListLoader{Items: states}, nil
}

func buildAssign(args registry.Args) (any, error) {
	if err := args.Expect([]string{"fields"}); err != nil {
		return nil, err
	}
	fields, err := args.Map("fields")
	if err != nil {
		return nil, err
	}
	return &steps.Assign{Fields: fields}, nil
}

func buildRename(args registry.Args) (any, error) {
	if err := args.Expect([]string{"mapping"}); err != nil {
		return nil, err
	}
	raw, err := args.Map("mapping")
	if err != nil {
		return nil, err
	}
	mapping := make(map[string]string, len(raw))
	for from, to := range raw {
		s, ok := to.(string)
		if !ok {
			return nil, fmt.Errorf("mapping[%q]: expected string, got %T", from, to)
		}
		mapping[from] = s
	}
	return &steps.Rename{Mapping: mapping}, nil
}

func buildSelect(args registry.Args) (any, error) {
	if err := args.Expect([]string{"keys"}); err != nil {
		return nil, err
	}
	keys, err := args.Strings("keys")
	if err != nil {
		return nil, err
	}
	return &steps.Select{Keys: keys}, nil
}

func buildScale(args registry.Args) (any, error) {
	if err := args.Expect([]string{"key", "factor"}); err != nil {
		return nil, err
	}
	key, err := args.String("key", "")
	if err != nil {
		return nil, err
	}
	factor, err := args.Float("factor", 0)
	if err != nil {
		return nil, err
	}
	return &steps.Scale{Key: key, Factor: factor}, nil
}

func buildSave(args registry.Args) (any, error) {
	err := args.Expect([]string{"dir"},
		"keys", "path_keys", "separator", "overwrite", "clear_output", "no_reload")
	if err != nil {
		return nil, err
	}

	dir, err := args.String("dir", "")
	if err != nil {
		return nil, err
	}
	opts := save.Options{}
	if opts.Keys, err = args.Strings("keys"); err != nil {
		return nil, err
	}
	if opts.PathKeys, err = args.Strings("path_keys"); err != nil {
		return nil, err
	}
	if opts.Separator, err = args.String("separator", ""); err != nil {
		return nil, err
	}
	if opts.Overwrite, err = args.Bool("overwrite", false); err != nil {
		return nil, err
	}
	if opts.ClearOutput, err = args.Bool("clear_output", false); err != nil {
		return nil, err
	}
	if opts.NoReload, err = args.Bool("no_reload", false); err != nil {
		return nil, err
	}
	return save.New(dir, opts)
}

// buildPipeline accepts its steps under "steps" or as the positional *args
// list; both forms carry already-built Step objects.
func buildPipeline(args registry.Args) (any, error) {
	if err := args.Expect(nil, "steps", config.VarArgsKey, "on_error"); err != nil {
		return nil, err
	}

	raw := args.List("steps")
	if raw == nil {
		raw = args.List(config.VarArgsKey)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("pipeline needs a %q list", "steps")
	}
	built := make([]pipeline.Step, len(raw))
	for i, item := range raw {
		step, ok := item.(pipeline.Step)
		if !ok {
			return nil, fmt.Errorf("steps[%d]: %T is not a pipeline step", i, item)
		}
		built[i] = step
	}

	value, err := args.String("on_error", "")
	if err != nil {
		return nil, err
	}
	onError, err := pipeline.ParseOnError(value)
	if err != nil {
		return nil, err
	}
	return pipeline.New(built, pipeline.Options{OnError: onError})
}
