// Package loader enumerates the items a pipeline will process. Loaders
// produce cheap item descriptors (paths plus metadata), not the data itself;
// reading happens inside pipeline steps.
package loader

import (
	"context"

	"neuropipe/internal/pipeline"
)

// DataLoader produces the finite sequence of items for one pipeline run.
// Load must be safe to call once per runner invocation and must return a
// fresh State per item: item states are never shared.
type DataLoader interface {
	Load(ctx context.Context) ([]pipeline.State, error)
}
