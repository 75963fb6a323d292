package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the serialization of a document on disk or on the wire.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported document format %q", name)
	}
}

// FormatForURL picks YAML for .yaml/.yml locations and JSON otherwise.
func FormatForURL(URL string) Format {
	switch strings.ToLower(path.Ext(URL)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DetectFormat sniffs the first significant byte: JSON documents start with
// an object or array, anything else is read as YAML.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// DecodeRaw decodes data into generic values: map[string]any, []any,
// string, bool, json.Number / int / float64 and nil.
func DecodeRaw(data []byte) (any, Format, error) {
	format := DetectFormat(data)
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, format, fmt.Errorf("decode json: %w", err)
		}
		return v, format, nil
	default:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, format, fmt.Errorf("decode yaml: %w", err)
		}
		return normalizeYAML(v), format, nil
	}
}

// normalizeYAML converts map[any]any produced for non-string keys into
// map[string]any so both formats yield the same tree shape.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
