// Package template renders variable substitutions in raw configuration text
// before it is deserialized. Rendering is strict: every variable referenced
// by the text must be supplied, and the full set of missing names is
// reported so a caller (e.g. the CLI) can prompt for them instead of
// fabricating defaults.
package template

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
)

// Reserved self-referential variables injected by the file-based parsers.
const (
	FileVar    = "__file__"
	FileDirVar = "__filedir__"
)

// UndefinedVarsError lists template variables the text references but the
// caller did not supply. The caller owns resolution (prompt, flag, abort);
// the engine never invents a value.
type UndefinedVarsError struct {
	Names []string
}

func (e *UndefinedVarsError) Error() string {
	return fmt.Sprintf("undefined template variables: %s", strings.Join(e.Names, ", "))
}

// Render substitutes vars into text and returns the rendered bytes.
func Render(name, text string, vars map[string]any) ([]byte, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}

	if missing := missingVars(tmpl, vars); len(missing) > 0 {
		return nil, &UndefinedVarsError{Names: missing}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Undeclared returns the variables text references that are absent from
// vars, sorted. A template parse failure is reported as such; an empty
// result means the text renders with the supplied vars.
func Undeclared(text string, vars map[string]any) ([]string, error) {
	tmpl, err := template.New("probe").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return missingVars(tmpl, vars), nil
}

func missingVars(tmpl *template.Template, vars map[string]any) []string {
	seen := map[string]bool{}
	var missing []string
	for _, t := range tmpl.Templates() {
		if t.Tree == nil {
			continue
		}
		walk(t.Tree.Root, func(n parse.Node) {
			field, ok := n.(*parse.FieldNode)
			if !ok || len(field.Ident) == 0 {
				return
			}
			name := field.Ident[0]
			if seen[name] {
				return
			}
			seen[name] = true
			if _, ok := vars[name]; !ok {
				missing = append(missing, name)
			}
		})
	}
	sort.Strings(missing)
	return missing
}

// walk visits every node of a template parse tree.
func walk(node parse.Node, visit func(parse.Node)) {
	if node == nil {
		return
	}
	visit(node)
	switch n := node.(type) {
	case *parse.ListNode:
		for _, item := range n.Nodes {
			walk(item, visit)
		}
	case *parse.ActionNode:
		walk(n.Pipe, visit)
	case *parse.PipeNode:
		for _, cmd := range n.Cmds {
			walk(cmd, visit)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			walk(arg, visit)
		}
	case *parse.IfNode:
		walkBranch(&n.BranchNode, visit)
	case *parse.RangeNode:
		walkBranch(&n.BranchNode, visit)
	case *parse.WithNode:
		walkBranch(&n.BranchNode, visit)
	case *parse.TemplateNode:
		walk(n.Pipe, visit)
	}
}

func walkBranch(n *parse.BranchNode, visit func(parse.Node)) {
	if n.Pipe != nil {
		walk(n.Pipe, visit)
	}
	if n.List != nil {
		walk(n.List, visit)
	}
	if n.ElseList != nil {
		walk(n.ElseList, visit)
	}
}
