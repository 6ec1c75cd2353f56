package pack

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseJSON decodes a pack document from JSON. The returned raw bytes feed
// the structural validation pass unchanged so field paths in issues point
// at the document the author wrote.
func ParseJSON(data []byte) (*Pack, error) {
	var p Pack
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pack json: %w", err)
	}
	return &p, nil
}

// ParseYAML decodes a YAML pack document and returns both the pack and its
// JSON rendering for schema validation.
func ParseYAML(data []byte) (*Pack, []byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse pack yaml: %w", err)
	}
	raw, err := json.Marshal(normalizeYAML(doc))
	if err != nil {
		return nil, nil, fmt.Errorf("convert pack yaml: %w", err)
	}
	p, err := ParseJSON(raw)
	if err != nil {
		return nil, nil, err
	}
	return p, raw, nil
}

// normalizeYAML rewrites map[interface{}]interface{} nodes (yaml.v3 emits
// map[string]interface{} already, but nested custom tags may not) into
// JSON-compatible maps.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = normalizeYAML(item)
		}
		return out
	}
	return v
}
