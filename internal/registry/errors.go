package registry

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when no scope provides the requested name.
type NotFoundError struct {
	Name       string
	Candidates []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("unknown callable %q", e.Name)
	if len(e.Candidates) == 0 {
		return msg
	}
	shown := e.Candidates
	const max = 15
	if len(shown) > max {
		shown = shown[:max]
	}
	return fmt.Sprintf("%s, did you forget to register it? Known callables: %s",
		msg, strings.Join(shown, ", "))
}

// AmbiguousScopeError is returned when a qualified name addresses a scope
// name that more than one registered scope carries. Unqualified lookups are
// never ambiguous: the first scope in priority order wins.
type AmbiguousScopeError struct {
	Scope string
	Count int
}

func (e *AmbiguousScopeError) Error() string {
	return fmt.Sprintf("scope %q is registered %d times; qualified lookup cannot disambiguate",
		e.Scope, e.Count)
}
