package lineage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MarshalJSON writes a snapshot endpoint as an object and an id-only
// endpoint as a string.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	if e.Model != nil {
		return json.Marshal(e.Model)
	}
	return json.Marshal(e.ID)
}

// UnmarshalJSON accepts a model object, a bare id string, or null.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*e = Endpoint{}
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &e.ID)
	case data[0] == '{':
		var m Model
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		e.ID, e.Model = m.ID, &m
		return nil
	default:
		// numeric ids are common in metadata exports
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("endpoint: unsupported value %s", data)
		}
		e.ID = n.String()
		return nil
	}
}

// MarshalYAML mirrors MarshalJSON.
func (e Endpoint) MarshalYAML() (any, error) {
	if e.Model != nil {
		return e.Model, nil
	}
	return e.ID, nil
}

// UnmarshalYAML accepts a mapping (model snapshot) or a scalar id.
func (e *Endpoint) UnmarshalYAML(node *yaml.Node) error {
	*e = Endpoint{}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		e.ID = node.Value
		return nil
	case yaml.MappingNode:
		var m Model
		if err := node.Decode(&m); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		e.ID, e.Model = m.ID, &m
		return nil
	default:
		return fmt.Errorf("endpoint: line %d: expected mapping or scalar", node.Line)
	}
}

// FlexString is an identifier that may be encoded as a JSON string or number.
type FlexString string

// UnmarshalJSON accepts strings, numbers and null.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("flex string: unsupported value %s", data)
	}
	*s = FlexString(data)
	return nil
}

// UnmarshalYAML accepts any scalar.
func (s *FlexString) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("flex string: line %d: expected scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*s = ""
		return nil
	}
	*s = FlexString(node.Value)
	return nil
}
