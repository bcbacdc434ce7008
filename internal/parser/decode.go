package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	"gopkg.in/yaml.v3"
)

// Decoder turns raw configuration text into the top-level document mapping.
type Decoder struct {
	Name       string
	Extensions []string
	Decode     func(filename string, data []byte) (map[string]any, error)
}

var decoders = []*Decoder{
	{
		Name:       "yaml",
		Extensions: []string{".yaml", ".yml"},
		Decode:     decodeYAML,
	},
	{
		Name:       "json",
		Extensions: []string{".json"},
		Decode:     decodeJSON,
	},
	{
		Name:       "hcl",
		Extensions: []string{".hcl"},
		Decode:     decodeHCL,
	},
}

// DecoderNames returns the selectable decoder names, sorted.
func DecoderNames() []string {
	names := make([]string, len(decoders))
	for i, d := range decoders {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

// DecoderByName returns the named decoder.
func DecoderByName(name string) (*Decoder, error) {
	for _, d := range decoders {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown parser %q (valid: %s)", name, strings.Join(DecoderNames(), ", "))
}

// DecoderForFile picks a decoder from the file extension. Files with an
// unrecognized extension fall back to a content sniff: a leading brace means
// JSON, anything else is treated as YAML.
func DecoderForFile(path string, data []byte) *Decoder {
	ext := strings.ToLower(filepath.Ext(path))
	for _, d := range decoders {
		for _, e := range d.Extensions {
			if e == ext {
				return d
			}
		}
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		d, _ := DecoderByName("json")
		return d
	}
	d, _ := DecoderByName("yaml")
	return d
}

func decodeYAML(filename string, data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse %s: document is empty", filename)
	}
	return doc, nil
}

func decodeJSON(filename string, data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return doc, nil
}

// decodeHCL reads an attribute-style HCL document: every top-level key is an
// attribute whose value converts to a plain Go value.
func decodeHCL(filename string, data []byte) (map[string]any, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", filename, diags.Error())
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", filename, diags.Error())
	}

	doc := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: attribute %q: %s", filename, name, diags.Error())
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("parse %s: attribute %q: %w", filename, name, err)
		}
		doc[name] = native
	}
	return doc, nil
}

// ctyToNative converts a cty.Value to its closest plain Go counterpart:
// strings, bools, float64 numbers, []any and map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("convert number: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
