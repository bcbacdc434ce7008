package parser

import (
	"fmt"
	"strings"
)

// MissingKeyError reports a required top-level document key that is absent.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing required key %q", e.Key)
}

// DuplicateLoaderNameError reports two loader entries sharing one name.
type DuplicateLoaderNameError struct {
	Name string
}

func (e *DuplicateLoaderNameError) Error() string {
	return fmt.Sprintf("duplicate loader name %q", e.Name)
}

// DanglingReferenceError reports a pipeline whose data_from names no loader.
type DanglingReferenceError struct {
	DataFrom string
	Known    []string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("pipeline references unknown loader %q (loaders: %s)",
		e.DataFrom, strings.Join(e.Known, ", "))
}

// UnknownScopeError reports an extra_paths entry naming no registered scope.
type UnknownScopeError struct {
	Name string
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("extra_paths names unknown scope %q", e.Name)
}
