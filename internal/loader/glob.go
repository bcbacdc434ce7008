package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"neuropipe/internal/pipeline"
)

// GlobLoader discovers items by matching file-system paths against glob
// patterns. Each match becomes a State carrying the path under Key.
type GlobLoader struct {
	// Patterns are filepath.Match globs, evaluated in order.
	Patterns []string

	// Key is the State key the matched path is stored under ("path" when
	// empty).
	Key string

	// Extensions, when set, keeps only paths with one of these suffixes
	// (case-insensitive, leading dot optional).
	Extensions []string

	// GlobFn allows tests to substitute the glob implementation.
	GlobFn func(pattern string) ([]string, error)
}

// Load expands every pattern and returns one item State per surviving path.
// Results are sorted within a pattern for deterministic runs; duplicates
// across patterns are dropped.
func (l *GlobLoader) Load(ctx context.Context) ([]pipeline.State, error) {
	if len(l.Patterns) == 0 {
		return nil, fmt.Errorf("glob loader needs at least one pattern")
	}
	key := l.Key
	if key == "" {
		key = "path"
	}
	globFn := l.GlobFn
	if globFn == nil {
		globFn = filepath.Glob
	}

	seen := map[string]bool{}
	var items []pipeline.State
	for _, pattern := range l.Patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := globFn(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			if seen[path] || !l.keep(path) {
				continue
			}
			seen[path] = true
			items = append(items, pipeline.State{key: path})
		}
	}
	return items, nil
}

func (l *GlobLoader) keep(path string) bool {
	if len(l.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range l.Extensions {
		want = strings.ToLower(want)
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}
