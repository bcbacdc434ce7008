// Package parser turns configuration documents into runnable (loader,
// pipeline) pairs. The baseline operation works on a decoded mapping; text
// and file inputs are handled by composable front stages (template expansion,
// format decoding) that all funnel into the same mapping-based resolution.
package parser

import (
	"fmt"
	"os"
	"path/filepath"

	"neuropipe/internal/config"
	"neuropipe/internal/loader"
	"neuropipe/internal/logging"
	"neuropipe/internal/pipeline"
	"neuropipe/internal/registry"
	"neuropipe/internal/runner"
	"neuropipe/internal/template"
)

// Reserved keys of the top-level document and its entries.
const (
	LoadersKey   = "data_loaders"
	PipelinesKey = "pipelines"
	ConfigKey    = "config"

	LoaderNameKey = "name"
	DataFromKey   = "data_from"

	// DefaultPipelineCallable names the builder used for pipeline entries
	// that carry no explicit callable.
	DefaultPipelineCallable = "Pipeline"
)

// Result is everything a parsed document configures: the pairs to run and the
// runner, logging and persistence settings from the config block.
type Result struct {
	Pairs     []runner.Pair
	Runner    runner.Options
	Logging   logging.Config
	StorePath string
}

// Parser resolves configuration documents against a set of builtin scopes.
// Extra scopes named by config.parser.extra_paths are searched ahead of the
// builtins, so user registrations shadow builtin names.
type Parser struct {
	builtins []*registry.Scope

	// MaxDepth overrides the expander's recursion bound when positive.
	MaxDepth int
}

// New creates a parser over the given builtin scopes.
func New(builtins ...*registry.Scope) *Parser {
	return &Parser{builtins: builtins}
}

// ParseMap validates and resolves a decoded document. All configuration
// errors surface here, before any item is processed.
func (p *Parser) ParseMap(doc map[string]any) (*Result, error) {
	for key := range doc {
		switch key {
		case LoadersKey, PipelinesKey, ConfigKey:
		default:
			return nil, fmt.Errorf("unknown top-level key %q", key)
		}
	}

	cfg, err := parseConfigBlock(doc)
	if err != nil {
		return nil, err
	}

	scopes, err := p.scopesFor(cfg.extraPaths)
	if err != nil {
		return nil, err
	}
	expander := &config.Expander{
		Resolver: registry.NewResolver(scopes...),
		MaxDepth: p.MaxDepth,
	}

	loaders, order, err := p.buildLoaders(doc, expander)
	if err != nil {
		return nil, err
	}
	pairs, err := p.buildPipelines(doc, expander, cfg, loaders, order)
	if err != nil {
		return nil, err
	}

	return &Result{
		Pairs:     pairs,
		Runner:    runner.Options{Workers: cfg.workers, FailFast: cfg.failFast},
		Logging:   cfg.logging,
		StorePath: cfg.storePath,
	}, nil
}

// ParseText decodes raw text with dec and resolves the result.
func (p *Parser) ParseText(name string, data []byte, dec *Decoder) (*Result, error) {
	doc, err := dec.Decode(name, data)
	if err != nil {
		return nil, err
	}
	return p.ParseMap(doc)
}

// ParseTemplateText renders vars into the text, then decodes and resolves it.
// Missing variables surface as *template.UndefinedVarsError so the caller can
// obtain them (prompt, flag) instead of this package inventing defaults.
func (p *Parser) ParseTemplateText(name string, data []byte, dec *Decoder, vars map[string]any) (*Result, error) {
	rendered, err := template.Render(name, string(data), vars)
	if err != nil {
		return nil, err
	}
	return p.ParseText(name, rendered, dec)
}

// ParseFile reads, templates, decodes and resolves a configuration file.
// parserName forces a decoder; empty means pick by file extension. The
// file's own path and directory are injected as the template variables
// __file__ and __filedir__.
func (p *Parser) ParseFile(path, parserName string, vars map[string]any) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	dec, err := p.decoderFor(path, parserName, data)
	if err != nil {
		return nil, err
	}
	return p.ParseTemplateText(filepath.Base(path), data, dec, withFileVars(path, vars))
}

// UndeclaredVars returns the template variables the file references beyond
// the supplied ones, so a caller can collect them up front.
func (p *Parser) UndeclaredVars(path string, vars map[string]any) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	return template.Undeclared(string(data), withFileVars(path, vars))
}

func (p *Parser) decoderFor(path, parserName string, data []byte) (*Decoder, error) {
	if parserName != "" {
		return DecoderByName(parserName)
	}
	return DecoderForFile(path, data), nil
}

func withFileVars(path string, vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	out[template.FileVar] = abs
	out[template.FileDirVar] = filepath.Dir(abs)
	return out
}

func (p *Parser) scopesFor(extraPaths []string) ([]*registry.Scope, error) {
	var scopes []*registry.Scope
	for _, name := range extraPaths {
		extra := registry.ScopesByName(name)
		if len(extra) == 0 {
			return nil, &UnknownScopeError{Name: name}
		}
		scopes = append(scopes, extra...)
	}
	return append(scopes, p.builtins...), nil
}

// buildLoaders resolves every data_loaders entry. Each entry is a callable
// specification carrying the reserved unique "name" key.
func (p *Parser) buildLoaders(doc map[string]any, expander *config.Expander) (map[string]loader.DataLoader, []string, error) {
	raw, ok := doc[LoadersKey]
	if !ok {
		return nil, nil, &MissingKeyError{Key: LoadersKey}
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("%s must be a sequence, got %T", LoadersKey, raw)
	}

	loaders := make(map[string]loader.DataLoader, len(entries))
	order := make([]string, 0, len(entries))
	for i, entry := range entries {
		path := fmt.Sprintf("%s[%d]", LoadersKey, i)

		spec, ok := entry.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("%s: expected a mapping, got %T", path, entry)
		}
		name, ok := spec[LoaderNameKey].(string)
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("%s: loader needs a non-empty %q", path, LoaderNameKey)
		}
		if _, dup := loaders[name]; dup {
			return nil, nil, &DuplicateLoaderNameError{Name: name}
		}
		if !config.IsCallableSpec(spec) {
			return nil, nil, fmt.Errorf("%s: loader %q carries no %q", path, name, config.CallableKey)
		}

		obj, err := expander.Expand(without(spec, LoaderNameKey))
		if err != nil {
			return nil, nil, err
		}
		dl, ok := obj.(loader.DataLoader)
		if !ok {
			return nil, nil, fmt.Errorf("%s: %q built a %T, not a data loader", path, name, obj)
		}
		loaders[name] = dl
		order = append(order, name)
	}
	return loaders, order, nil
}

// buildPipelines resolves every pipelines entry against the loaders. The
// reserved "data_from" key binds the pipeline to a loader; the callable
// defaults to the standard pipeline builder.
func (p *Parser) buildPipelines(doc map[string]any, expander *config.Expander, cfg *configBlock, loaders map[string]loader.DataLoader, order []string) ([]runner.Pair, error) {
	raw, ok := doc[PipelinesKey]
	if !ok {
		return nil, &MissingKeyError{Key: PipelinesKey}
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a sequence, got %T", PipelinesKey, raw)
	}

	pairs := make([]runner.Pair, 0, len(entries))
	for i, entry := range entries {
		path := fmt.Sprintf("%s[%d]", PipelinesKey, i)

		spec, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected a mapping, got %T", path, entry)
		}
		dataFrom, ok := spec[DataFromKey].(string)
		if !ok || dataFrom == "" {
			return nil, fmt.Errorf("%s: pipeline needs a non-empty %q", path, DataFromKey)
		}
		dl, ok := loaders[dataFrom]
		if !ok {
			return nil, &DanglingReferenceError{DataFrom: dataFrom, Known: order}
		}

		spec = without(spec, DataFromKey)
		if !config.IsCallableSpec(spec) {
			spec[config.CallableKey] = DefaultPipelineCallable
		}
		if cfg.onError != "" {
			if _, set := spec["on_error"]; !set {
				spec["on_error"] = cfg.onError
			}
		}

		obj, err := expander.Expand(spec)
		if err != nil {
			return nil, err
		}
		pl, ok := obj.(*pipeline.Pipeline)
		if !ok {
			return nil, fmt.Errorf("%s: built a %T, not a pipeline", path, obj)
		}
		pairs = append(pairs, runner.Pair{LoaderName: dataFrom, Loader: dl, Pipeline: pl})
	}
	return pairs, nil
}

// without copies a spec mapping minus one key, so document mutation never
// leaks back to the caller.
func without(spec map[string]any, key string) map[string]any {
	out := make(map[string]any, len(spec))
	for k, v := range spec {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// configBlock is the parsed optional "config" section.
type configBlock struct {
	extraPaths []string
	workers    int
	failFast   bool
	onError    string
	logging    logging.Config
	storePath  string
}

func parseConfigBlock(doc map[string]any) (*configBlock, error) {
	out := &configBlock{}
	raw, ok := doc[ConfigKey]
	if !ok {
		return out, nil
	}
	block, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping, got %T", ConfigKey, raw)
	}
	args := registry.Args(block)
	if err := args.Expect(nil, "parser", "runner", "logging", "store"); err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigKey, err)
	}

	parserCfg, err := args.Map("parser")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigKey, err)
	}
	if parserCfg != nil {
		pa := registry.Args(parserCfg)
		if err := pa.Expect(nil, "extra_paths"); err != nil {
			return nil, fmt.Errorf("%s.parser: %w", ConfigKey, err)
		}
		if out.extraPaths, err = pa.Strings("extra_paths"); err != nil {
			return nil, fmt.Errorf("%s.parser: %w", ConfigKey, err)
		}
	}

	runnerCfg, err := args.Map("runner")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigKey, err)
	}
	if runnerCfg != nil {
		ra := registry.Args(runnerCfg)
		if err := ra.Expect(nil, "workers", "fail_fast", "on_error"); err != nil {
			return nil, fmt.Errorf("%s.runner: %w", ConfigKey, err)
		}
		if out.workers, err = ra.Int("workers", 0); err != nil {
			return nil, fmt.Errorf("%s.runner: %w", ConfigKey, err)
		}
		if out.failFast, err = ra.Bool("fail_fast", false); err != nil {
			return nil, fmt.Errorf("%s.runner: %w", ConfigKey, err)
		}
		if out.onError, err = ra.String("on_error", ""); err != nil {
			return nil, fmt.Errorf("%s.runner: %w", ConfigKey, err)
		}
		if _, err := pipeline.ParseOnError(out.onError); err != nil {
			return nil, fmt.Errorf("%s.runner: %w", ConfigKey, err)
		}
	}

	loggingCfg, err := args.Map("logging")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigKey, err)
	}
	if loggingCfg != nil {
		la := registry.Args(loggingCfg)
		if err := la.Expect(nil, "level", "format"); err != nil {
			return nil, fmt.Errorf("%s.logging: %w", ConfigKey, err)
		}
		if out.logging.Level, err = la.String("level", ""); err != nil {
			return nil, fmt.Errorf("%s.logging: %w", ConfigKey, err)
		}
		if out.logging.Format, err = la.String("format", ""); err != nil {
			return nil, fmt.Errorf("%s.logging: %w", ConfigKey, err)
		}
	}

	storeCfg, err := args.Map("store")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigKey, err)
	}
	if storeCfg != nil {
		sa := registry.Args(storeCfg)
		if err := sa.Expect(nil, "path"); err != nil {
			return nil, fmt.Errorf("%s.store: %w", ConfigKey, err)
		}
		if out.storePath, err = sa.String("path", ""); err != nil {
			return nil, fmt.Errorf("%s.store: %w", ConfigKey, err)
		}
	}

	return out, nil
}
