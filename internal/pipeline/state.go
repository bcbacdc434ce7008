package pipeline

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sort"
	"time"
)

// State is the mutable working context for one discovered item as it flows
// through a pipeline. Steps read and write it freely; no two items ever
// share a State and no step may retain a reference after returning.
type State map[string]any

// Clone returns a shallow copy. Useful for steps that want to branch without
// touching the caller's mapping.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// HistoryKey is the State key under which the pipeline appends a record per
// applied step.
const HistoryKey = "previous_steps"

// StepRecord describes one applied step in an item's history.
type StepRecord struct {
	Index    int
	Name     string
	Duration time.Duration
}

// ItemID derives a stable identity for an item. Artifacts and run records
// are addressed by this identity, never by submission order. Items without
// an "id" or "path" key fall back to a content hash, so two distinct items
// never share an identity.
func ItemID(s State) string {
	if id, ok := s["id"].(string); ok && id != "" {
		return id
	}
	if path, ok := s["path"].(string); ok && path != "" {
		return filepath.Base(path)
	}

	keys := make([]string, 0, len(s))
	for k := range s {
		if k != HistoryKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	h := fnv.New32a()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, s[k])
	}
	return fmt.Sprintf("item-%08x", h.Sum32())
}

func appendHistory(s State, rec StepRecord) {
	history, _ := s[HistoryKey].([]StepRecord)
	s[HistoryKey] = append(history, rec)
}
