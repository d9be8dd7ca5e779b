package story

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConditionKind identifies one of the recognized condition variants.
type ConditionKind string

const (
	CondHasFlag    ConditionKind = "has_flag"
	CondNotHasFlag ConditionKind = "not_has_flag"
	CondFlagEquals ConditionKind = "flag_equals"
)

// Condition is a predicate over a run's flags gating whether a choice is
// selectable. Exactly one kind applies per condition. Unrecognized kinds
// survive load and export but always evaluate false.
type Condition struct {
	Kind  ConditionKind
	Flag  string
	Value string

	// raw preserves the payload of an unrecognized kind for export.
	raw any
}

// Known reports whether the condition kind is one the engine evaluates.
func (c Condition) Known() bool {
	switch c.Kind {
	case CondHasFlag, CondNotHasFlag, CondFlagEquals:
		return true
	}
	return false
}

// HasFlag builds a has_flag condition.
func HasFlag(name string) Condition {
	return Condition{Kind: CondHasFlag, Flag: name}
}

// NotHasFlag builds a not_has_flag condition.
func NotHasFlag(name string) Condition {
	return Condition{Kind: CondNotHasFlag, Flag: name}
}

// FlagEquals builds a flag_equals condition.
func FlagEquals(name, value string) Condition {
	return Condition{Kind: CondFlagEquals, Flag: name, Value: value}
}

func (c *Condition) UnmarshalYAML(value *yaml.Node) error {
	kind, payload, err := decodeTaggedYAML(value)
	if err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	c.Kind = ConditionKind(kind)

	switch c.Kind {
	case CondHasFlag, CondNotHasFlag:
		var v any
		if err := payload.Decode(&v); err != nil {
			return fmt.Errorf("condition %s: %w", kind, err)
		}
		c.Flag = stringify(v)
	case CondFlagEquals:
		var fv flagValue
		if err := payload.Decode(&fv); err != nil {
			return fmt.Errorf("condition %s: %w", kind, err)
		}
		c.Flag = fv.Flag
		c.Value = stringify(fv.Value)
	default:
		var v any
		if err := payload.Decode(&v); err != nil {
			return fmt.Errorf("condition %s: %w", kind, err)
		}
		c.raw = v
	}
	return nil
}

func (c Condition) MarshalYAML() (any, error) {
	return c.tagged(), nil
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	kind, payload, err := decodeTaggedJSON(data)
	if err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	c.Kind = ConditionKind(kind)

	switch c.Kind {
	case CondHasFlag, CondNotHasFlag:
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("condition %s: %w", kind, err)
		}
		c.Flag = stringify(v)
	case CondFlagEquals:
		var fv flagValue
		if err := json.Unmarshal(payload, &fv); err != nil {
			return fmt.Errorf("condition %s: %w", kind, err)
		}
		c.Flag = fv.Flag
		c.Value = stringify(fv.Value)
	default:
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("condition %s: %w", kind, err)
		}
		c.raw = v
	}
	return nil
}

func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.tagged())
}

func (c Condition) tagged() any {
	switch c.Kind {
	case CondHasFlag, CondNotHasFlag:
		return map[string]string{string(c.Kind): c.Flag}
	case CondFlagEquals:
		return map[string]flagValue{string(c.Kind): {Flag: c.Flag, Value: c.Value}}
	default:
		return map[string]any{string(c.Kind): c.raw}
	}
}
