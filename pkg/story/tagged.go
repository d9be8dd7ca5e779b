package story

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Conditions and effects are written in story files as single-key
// mappings, the key naming the kind and the value carrying the payload:
//
//	conditions:
//	  - has_flag: lantern
//	  - flag_equals: {flag: coins, value: 3}
//	effects:
//	  - add_flag: lantern
//	  - set_flag: {flag: mood, value: grim}
//
// The helpers below decode that shape from YAML and JSON into a tagged
// value. Unknown kinds are kept verbatim so a loaded story can be
// exported back without loss.

// flagValue is the two-field payload of flag_equals and set_flag.
type flagValue struct {
	Flag  string `yaml:"flag" json:"flag"`
	Value any    `yaml:"value" json:"value"`
}

// decodeTaggedYAML extracts the kind key and payload node from a
// single-key mapping node.
func decodeTaggedYAML(value *yaml.Node) (string, *yaml.Node, error) {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return "", nil, fmt.Errorf("expected a single-key mapping, got %s", value.Tag)
	}
	return value.Content[0].Value, value.Content[1], nil
}

// decodeTaggedJSON extracts the kind key and raw payload from a
// single-key JSON object.
func decodeTaggedJSON(data []byte) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("expected a single-key object, got %d keys", len(m))
	}
	for k, v := range m {
		return k, v, nil
	}
	return "", nil, nil // unreachable
}

// stringify renders a scalar payload value the way story files mean it:
// numbers and booleans become their string form, since flags are stored
// as strings.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// JSON numbers decode as float64; keep integers clean.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
