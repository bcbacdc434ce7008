// Package steps holds the generic built-in pipeline steps. Domain-specific
// processing (filtering, resampling, format readers) lives outside the
// engine and plugs in through the registry.
package steps

import (
	"context"
	"fmt"

	"neuropipe/internal/pipeline"
)

// Assign sets static fields on the item's State.
type Assign struct {
	Fields map[string]any
}

func (s *Assign) Name() string { return "Assign" }

func (s *Assign) Apply(_ context.Context, state pipeline.State) (pipeline.State, error) {
	for key, value := range s.Fields {
		state[key] = value
	}
	return state, nil
}

// Rename moves values between State keys. Every source key must be present.
type Rename struct {
	Mapping map[string]string
}

func (s *Rename) Name() string { return "Rename" }

func (s *Rename) Apply(_ context.Context, state pipeline.State) (pipeline.State, error) {
	for from, to := range s.Mapping {
		value, ok := state[from]
		if !ok {
			return nil, fmt.Errorf("rename: state has no key %q", from)
		}
		delete(state, from)
		state[to] = value
	}
	return state, nil
}

// Select keeps only the listed State keys (plus the step history).
type Select struct {
	Keys []string
}

func (s *Select) Name() string { return "Select" }

func (s *Select) Apply(_ context.Context, state pipeline.State) (pipeline.State, error) {
	keep := make(map[string]bool, len(s.Keys)+1)
	for _, key := range s.Keys {
		if !keep[key] {
			keep[key] = true
		}
	}
	keep[pipeline.HistoryKey] = true
	for key := range state {
		if !keep[key] {
			delete(state, key)
		}
	}
	return state, nil
}

// Scale multiplies a numeric State field by a constant factor.
type Scale struct {
	Key    string
	Factor float64
}

func (s *Scale) Name() string { return "Scale" }

func (s *Scale) Apply(_ context.Context, state pipeline.State) (pipeline.State, error) {
	value, ok := state[s.Key]
	if !ok {
		return nil, fmt.Errorf("scale: state has no key %q", s.Key)
	}
	switch n := value.(type) {
	case float64:
		state[s.Key] = n * s.Factor
	case int:
		state[s.Key] = float64(n) * s.Factor
	case int64:
		state[s.Key] = float64(n) * s.Factor
	default:
		return nil, fmt.Errorf("scale: key %q holds %T, not a number", s.Key, value)
	}
	return state, nil
}
