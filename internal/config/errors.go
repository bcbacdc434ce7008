package config

import "fmt"

// SpecError reports a problem with a callable specification, carrying the
// key path of the offending node so the configuration can be fixed without
// guesswork.
type SpecError struct {
	Path string
	Msg  string
	Err  error
}

func (e *SpecError) Error() string {
	head := joinErr(e.Path, e.Msg)
	if e.Err == nil {
		return head
	}
	if head == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", head, e.Err)
}

func (e *SpecError) Unwrap() error { return e.Err }

// MaxDepthError reports that expansion exceeded the recursion bound.
type MaxDepthError struct {
	Path  string
	Depth int
}

func (e *MaxDepthError) Error() string {
	return fmt.Sprintf("configuration nesting exceeds %d levels at %q", e.Depth, e.Path)
}
