package registry

import (
	"fmt"
	"sort"
)

// Args holds the expanded keyword arguments of a callable specification.
// Values are plain decoded config values (string, bool, int, float64,
// []any, map[string]any) or objects already built by the expander.
type Args map[string]any

// Has reports whether key is present.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Expect validates the argument set: every required key must be present and
// no key outside required∪optional may appear. This mirrors strict keyword
// arguments, so configuration typos fail at parse time instead of being
// silently ignored.
func (a Args) Expect(required []string, optional ...string) error {
	known := make(map[string]bool, len(required)+len(optional))
	for _, key := range required {
		if !a.Has(key) {
			return fmt.Errorf("missing required argument %q", key)
		}
		known[key] = true
	}
	for _, key := range optional {
		known[key] = true
	}
	var unexpected []string
	for key := range a {
		if !known[key] {
			unexpected = append(unexpected, key)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return fmt.Errorf("unexpected argument %q", unexpected[0])
	}
	return nil
}

// String returns the string under key, or def when absent.
func (a Args) String(key, def string) (string, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
	}
	return s, nil
}

// Bool returns the bool under key, or def when absent.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q: expected bool, got %T", key, v)
	}
	return b, nil
}

// Int returns the integer under key, or def when absent. JSON and HCL decode
// numbers as float64; integral floats are accepted.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
		return 0, fmt.Errorf("argument %q: expected integer, got %v", key, n)
	default:
		return 0, fmt.Errorf("argument %q: expected integer, got %T", key, v)
	}
}

// Float returns the float under key, or def when absent.
func (a Args) Float(key string, def float64) (float64, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("argument %q: expected number, got %T", key, v)
	}
}

// Strings returns the string sequence under key, or nil when absent.
// A single string is accepted and wrapped, as configurations commonly write
// one-element lists as scalars.
func (a Args) Strings(key string) ([]string, error) {
	v, ok := a[key]
	if !ok {
		return nil, nil
	}
	switch seq := v.(type) {
	case string:
		return []string{seq}, nil
	case []string:
		return seq, nil
	case []any:
		out := make([]string, len(seq))
		for i, item := range seq {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q[%d]: expected string, got %T", key, i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q: expected string list, got %T", key, v)
	}
}

// List returns the sequence under key, or nil when absent. A non-sequence
// value is wrapped in a one-element slice.
func (a Args) List(key string) []any {
	v, ok := a[key]
	if !ok {
		return nil
	}
	if seq, ok := v.([]any); ok {
		return seq
	}
	return []any{v}
}

// Map returns the mapping under key, or nil when absent.
func (a Args) Map(key string) (map[string]any, error) {
	v, ok := a[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q: expected mapping, got %T", key, v)
	}
	return m, nil
}
