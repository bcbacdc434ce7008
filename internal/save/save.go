// Package save provides the persisting pipeline step. Artifacts are
// addressed by a deterministic, item-derived filename, so re-running a
// configuration finds prior output and skips recomputation unless overwrite
// is requested.
package save

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"neuropipe/internal/pipeline"
)

const (
	// DefaultSeparator joins the parts of an artifact filename.
	DefaultSeparator = "_-_"
	metadataFile     = "save_metadata.json"
)

// Save persists selected State keys as JSON artifacts plus a metadata
// sidecar used to detect prior output.
type Save struct {
	dir       string
	keys      []string
	separator string
	pathKeys  []string
	overwrite bool
	clear     bool
	noReload  bool

	// The same Save instance serves concurrent items; the metadata sidecar
	// is the only shared mutable resource.
	mu sync.Mutex
}

// Options configure a Save step.
type Options struct {
	// Keys selects which State keys to persist; empty persists the whole
	// State as a single artifact.
	Keys []string
	// PathKeys contribute their basenames to artifact filenames, in order.
	// Defaults to ("path", "stimulus_path").
	PathKeys []string
	// Separator between filename parts; DefaultSeparator when empty.
	Separator string
	// Overwrite ignores existing artifacts and writes again.
	Overwrite bool
	// ClearOutput empties the State after saving; downstream steps get
	// nothing, and prior output is treated as final.
	ClearOutput bool
	// NoReload marks artifacts write-only: prior output is still detected
	// (and skipped), but never read back.
	NoReload bool
}

// New creates a Save step writing into dir.
func New(dir string, opts Options) (*Save, error) {
	if dir == "" {
		return nil, fmt.Errorf("save step needs a target directory")
	}
	separator := opts.Separator
	if separator == "" {
		separator = DefaultSeparator
	}
	pathKeys := opts.PathKeys
	if len(pathKeys) == 0 {
		pathKeys = []string{"path", "stimulus_path"}
	}
	return &Save{
		dir:       dir,
		keys:      opts.Keys,
		separator: separator,
		pathKeys:  pathKeys,
		overwrite: opts.Overwrite,
		clear:     opts.ClearOutput,
		noReload:  opts.NoReload,
	}, nil
}

func (s *Save) Name() string { return "Save" }

// Apply writes the item's artifacts. It is idempotent under re-run: with
// overwrite disabled and artifacts present it forwards the prior output
// instead of recomputing, or ends the item as a skip when the prior output
// cannot be forwarded.
func (s *Save) Apply(ctx context.Context, state pipeline.State) (pipeline.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.overwrite && s.IsDone(state) {
		if s.Reloadable(state) && !s.clear {
			return s.Reload(state)
		}
		return state, fmt.Errorf("artifact for %q already produced: %w",
			pipeline.ItemID(state), pipeline.ErrSkip)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	files := map[string]string{}
	if len(s.keys) == 0 {
		name := s.baseName(state) + ".json"
		if err := s.writeJSON(name, state); err != nil {
			return nil, err
		}
		files["*"] = name
	} else {
		for _, key := range s.keys {
			value, ok := state[key]
			if !ok {
				return nil, fmt.Errorf("state has no key %q to save", key)
			}
			name := s.baseName(state) + s.separator + key + ".json"
			if err := s.writeJSON(name, value); err != nil {
				return nil, err
			}
			files[key] = name
		}
	}

	if err := s.updateMetadata(s.metadataKey(state), files); err != nil {
		return nil, err
	}

	if s.clear {
		return pipeline.State{}, nil
	}
	return state, nil
}

// IsDone reports whether every artifact for this item already exists.
func (s *Save) IsDone(state pipeline.State) bool {
	files, ok := s.lookupMetadata(s.metadataKey(state))
	if !ok || len(files) == 0 {
		return false
	}
	for _, name := range files {
		if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Reloadable reports whether prior output can be read back.
func (s *Save) Reloadable(pipeline.State) bool { return !s.noReload }

// Overwrites reports the configured overwrite flag.
func (s *Save) Overwrites() bool { return s.overwrite }

// ClearsOutput reports the configured clear_output flag.
func (s *Save) ClearsOutput() bool { return s.clear }

// Reload reads prior artifacts back into the item's State. JSON round-trips
// numbers as float64 and mappings as map[string]any.
func (s *Save) Reload(state pipeline.State) (pipeline.State, error) {
	files, ok := s.lookupMetadata(s.metadataKey(state))
	if !ok {
		return nil, fmt.Errorf("no saved artifacts for %q", pipeline.ItemID(state))
	}

	if name, whole := files["*"]; whole {
		var reloaded pipeline.State
		if err := s.readJSON(name, &reloaded); err != nil {
			return nil, err
		}
		return reloaded, nil
	}

	out := state.Clone()
	for key, name := range files {
		var value any
		if err := s.readJSON(name, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

// Target returns the deterministic artifact path for a state key. Exposed so
// callers can locate prior output without re-running anything.
func (s *Save) Target(state pipeline.State, key string) string {
	if key == "" || key == "*" {
		return filepath.Join(s.dir, s.baseName(state)+".json")
	}
	return filepath.Join(s.dir, s.baseName(state)+s.separator+key+".json")
}

func (s *Save) baseName(state pipeline.State) string {
	var parts []string
	for _, pathKey := range s.pathKeys {
		if path, ok := state[pathKey].(string); ok && path != "" {
			base := filepath.Base(path)
			parts = append(parts, strings.TrimSuffix(base, filepath.Ext(base)))
		}
	}
	if len(parts) == 0 {
		parts = []string{pipeline.ItemID(state)}
	}
	return strings.Join(parts, s.separator)
}

func (s *Save) metadataKey(state pipeline.State) string {
	for _, pathKey := range s.pathKeys {
		if path, ok := state[pathKey].(string); ok && path != "" {
			return filepath.Base(path)
		}
	}
	return pipeline.ItemID(state)
}

func (s *Save) writeJSON(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

func (s *Save) readJSON(name string, into any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse artifact %s: %w", name, err)
	}
	return nil
}

// metadata maps an item's metadata key to its artifact files (state key →
// filename).
type metadata map[string]map[string]string

func (s *Save) metadataPath() string {
	return filepath.Join(s.dir, metadataFile)
}

func (s *Save) loadMetadata() (metadata, error) {
	data, err := os.ReadFile(s.metadataPath())
	if os.IsNotExist(err) {
		return metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read save metadata: %w", err)
	}
	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse save metadata: %w", err)
	}
	return meta, nil
}

func (s *Save) lookupMetadata(key string) (map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.loadMetadata()
	if err != nil {
		return nil, false
	}
	files, ok := meta[key]
	return files, ok
}

func (s *Save) updateMetadata(key string, files map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.loadMetadata()
	if err != nil {
		return err
	}
	meta[key] = files
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal save metadata: %w", err)
	}
	if err := os.WriteFile(s.metadataPath(), data, 0644); err != nil {
		return fmt.Errorf("write save metadata: %w", err)
	}
	return nil
}
