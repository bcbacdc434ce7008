// Package config turns decoded configuration trees into live objects.
//
// A configuration node is a scalar, a sequence, or a mapping. A mapping that
// carries the reserved "callable" key is a callable specification: the named
// builder is resolved and invoked with the remaining keys as keyword
// arguments, themselves expanded recursively. The reserved "is_pointer" flag
// returns the bound builder itself instead of invoking it.
package config

import (
	"fmt"
	"strings"

	"neuropipe/internal/registry"
)

// Reserved keys of a callable specification.
const (
	CallableKey = "callable"
	PointerKey  = "is_pointer"
	VarArgsKey  = "*args"
)

// DefaultMaxDepth bounds expansion recursion. Configuration documents are
// acyclic by construction, so hitting the bound means a pathological input;
// failing with MaxDepthError beats exhausting the stack.
const DefaultMaxDepth = 64

// Expander resolves and instantiates callable specifications inside a
// configuration tree. Resolution happens once at startup; the expander holds
// no per-run state.
type Expander struct {
	Resolver *registry.Resolver

	// MaxDepth overrides DefaultMaxDepth when positive.
	MaxDepth int
}

// Expand walks node and returns the expanded value: sequences element-wise
// in order, callable specifications constructed, plain mappings key by key,
// scalars untouched.
func (e *Expander) Expand(node any) (any, error) {
	return e.expand(node, "", 0)
}

func (e *Expander) maxDepth() int {
	if e.MaxDepth > 0 {
		return e.MaxDepth
	}
	return DefaultMaxDepth
}

func (e *Expander) expand(node any, path string, depth int) (any, error) {
	if depth > e.maxDepth() {
		return nil, &MaxDepthError{Path: path, Depth: depth}
	}

	switch v := node.(type) {
	case map[string]any:
		if _, ok := v[CallableKey]; ok {
			return e.construct(v, path, depth)
		}
		out := make(map[string]any, len(v))
		for key, val := range v {
			expanded, err := e.expand(val, childPath(path, key), depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = expanded
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			expanded, err := e.expand(item, fmt.Sprintf("%s[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil

	default:
		// Scalar (string, bool, number, nil) or an already-built object.
		return node, nil
	}
}

// construct handles a callable specification mapping.
func (e *Expander) construct(spec map[string]any, path string, depth int) (any, error) {
	name, ok := spec[CallableKey].(string)
	if !ok {
		return nil, &SpecError{
			Path: path,
			Msg:  fmt.Sprintf("%q must be a string, got %T", CallableKey, spec[CallableKey]),
		}
	}

	builder, err := e.Resolver.Resolve(name)
	if err != nil {
		return nil, &SpecError{Path: path, Msg: "", Err: err}
	}

	// Pointer flag: hand back the bound builder, untouched siblings included.
	if raw, ok := spec[PointerKey]; ok {
		isPointer, ok := raw.(bool)
		if !ok {
			return nil, &SpecError{
				Path: path,
				Msg:  fmt.Sprintf("%q must be a bool, got %T", PointerKey, raw),
			}
		}
		if isPointer {
			return builder, nil
		}
	}

	args := make(registry.Args, len(spec))
	for key, val := range spec {
		if key == CallableKey || key == PointerKey {
			continue
		}
		expanded, err := e.expand(val, childPath(path, key), depth+1)
		if err != nil {
			return nil, err
		}
		args[key] = expanded
	}

	obj, err := builder(args)
	if err != nil {
		return nil, &SpecError{Path: path, Msg: fmt.Sprintf("building %q", name), Err: err}
	}
	return obj, nil
}

func childPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// IsCallableSpec reports whether node is a callable specification mapping.
func IsCallableSpec(node any) bool {
	m, ok := node.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[CallableKey]
	return ok
}

// joinErr is a helper for error text; kept separate so SpecError formatting
// stays in one place.
func joinErr(path, msg string) string {
	parts := make([]string, 0, 2)
	if path != "" {
		parts = append(parts, "at "+path)
	}
	if msg != "" {
		parts = append(parts, msg)
	}
	return strings.Join(parts, ": ")
}
