package loader

import (
	"context"

	"neuropipe/internal/pipeline"
)

// ListLoader serves items straight from the configuration document. Useful
// for small fixed datasets and for tests.
type ListLoader struct {
	Items []pipeline.State
}

// Load returns a fresh copy of every configured item so that pipeline runs
// never mutate the loader's own data.
func (l *ListLoader) Load(ctx context.Context) ([]pipeline.State, error) {
	items := make([]pipeline.State, len(l.Items))
	for i, item := range l.Items {
		items[i] = item.Clone()
	}
	return items, nil
}
