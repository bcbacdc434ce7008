// Package registry maps names from configuration documents to the Go
// implementations that back them. Implementations are grouped into named
// scopes; a resolver searches an ordered list of scopes so that
// user-supplied scopes can shadow the builtins.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Builder constructs a loader, step, or helper value from the expanded
// keyword arguments of a callable specification.
type Builder func(args Args) (any, error)

// Scope is a named registration table of builders.
type Scope struct {
	name    string
	entries map[string]Builder
}

// NewScope creates an empty scope with the given name.
func NewScope(name string) *Scope {
	return &Scope{name: name, entries: make(map[string]Builder)}
}

// Name returns the scope name, used for qualified lookups ("scope.Entry").
func (s *Scope) Name() string { return s.name }

// Register adds a builder under name. Registering the same name twice in one
// scope is a programming error and panics.
func (s *Scope) Register(name string, b Builder) {
	if _, exists := s.entries[name]; exists {
		panic(fmt.Sprintf("builder %q already registered in scope %q", name, s.name))
	}
	s.entries[name] = b
}

// Names returns the registered entry names, sorted.
func (s *Scope) Names() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	extraMu     sync.RWMutex
	extraScopes = map[string][]*Scope{}
)

// RegisterScope makes a scope available for configuration documents that name
// it under config.parser.extra_paths. Typically called from a plugin
// package's setup code before the CLI parses anything.
func RegisterScope(s *Scope) {
	extraMu.Lock()
	defer extraMu.Unlock()
	extraScopes[s.name] = append(extraScopes[s.name], s)
}

// ScopesByName returns the registered scopes for a name, in registration
// order. Nil when the name is unknown.
func ScopesByName(name string) []*Scope {
	extraMu.RLock()
	defer extraMu.RUnlock()
	return extraScopes[name]
}

// Resolver looks up builders across an ordered list of scopes.
//
// Unqualified names are searched scope by scope and the first match wins;
// this tie-break is deliberate so that extra scopes listed ahead of the
// builtins shadow them deterministically. Qualified "scope.Entry" names
// bypass the ordering and address one scope directly.
type Resolver struct {
	scopes []*Scope
}

// NewResolver builds a resolver over the given scopes, searched in order.
func NewResolver(scopes ...*Scope) *Resolver {
	return &Resolver{scopes: scopes}
}

// Resolve returns the builder registered under name.
func (r *Resolver) Resolve(name string) (Builder, error) {
	if name == "" {
		return nil, &NotFoundError{Name: name, Candidates: r.Candidates()}
	}
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return r.resolveQualified(name[:idx], name[idx+1:])
	}
	for _, scope := range r.scopes {
		if b, ok := scope.entries[name]; ok {
			return b, nil
		}
	}
	return nil, &NotFoundError{Name: name, Candidates: r.Candidates()}
}

func (r *Resolver) resolveQualified(scopeName, entry string) (Builder, error) {
	var matches []*Scope
	for _, scope := range r.scopes {
		if scope.name == scopeName {
			matches = append(matches, scope)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &NotFoundError{
			Name:       scopeName + "." + entry,
			Candidates: r.Candidates(),
		}
	case 1:
		if b, ok := matches[0].entries[entry]; ok {
			return b, nil
		}
		return nil, &NotFoundError{
			Name:       scopeName + "." + entry,
			Candidates: r.Candidates(),
		}
	default:
		return nil, &AmbiguousScopeError{Scope: scopeName, Count: len(matches)}
	}
}

// Candidates returns every resolvable qualified name, sorted. Used to give
// actionable "did you mean" context in configuration errors.
func (r *Resolver) Candidates() []string {
	var names []string
	for _, scope := range r.scopes {
		for name := range scope.entries {
			names = append(names, scope.name+"."+name)
		}
	}
	sort.Strings(names)
	return names
}
