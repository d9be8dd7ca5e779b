package story

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// EffectKind identifies one of the recognized effect variants.
type EffectKind string

const (
	EffectAddFlag          EffectKind = "add_flag"
	EffectRemoveFlag       EffectKind = "remove_flag"
	EffectSetFlag          EffectKind = "set_flag"
	EffectIncrementCounter EffectKind = "increment_counter"
)

// FlagPresentValue is the canonical value add_flag stores.
const FlagPresentValue = "1"

// Effect is a flag mutation applied when a choice is taken. Exactly one
// kind applies per effect. Unrecognized kinds survive load and export
// but are skipped at apply time.
type Effect struct {
	Kind  EffectKind
	Flag  string
	Value string

	// raw preserves the payload of an unrecognized kind for export.
	raw any
}

// Known reports whether the effect kind is one the engine applies.
func (e Effect) Known() bool {
	switch e.Kind {
	case EffectAddFlag, EffectRemoveFlag, EffectSetFlag, EffectIncrementCounter:
		return true
	}
	return false
}

// AddFlag builds an add_flag effect.
func AddFlag(name string) Effect {
	return Effect{Kind: EffectAddFlag, Flag: name}
}

// RemoveFlag builds a remove_flag effect.
func RemoveFlag(name string) Effect {
	return Effect{Kind: EffectRemoveFlag, Flag: name}
}

// SetFlag builds a set_flag effect.
func SetFlag(name, value string) Effect {
	return Effect{Kind: EffectSetFlag, Flag: name, Value: value}
}

// IncrementCounter builds an increment_counter effect.
func IncrementCounter(name string) Effect {
	return Effect{Kind: EffectIncrementCounter, Flag: name}
}

func (e *Effect) UnmarshalYAML(value *yaml.Node) error {
	kind, payload, err := decodeTaggedYAML(value)
	if err != nil {
		return fmt.Errorf("effect: %w", err)
	}
	e.Kind = EffectKind(kind)

	switch e.Kind {
	case EffectAddFlag, EffectRemoveFlag, EffectIncrementCounter:
		var v any
		if err := payload.Decode(&v); err != nil {
			return fmt.Errorf("effect %s: %w", kind, err)
		}
		e.Flag = stringify(v)
	case EffectSetFlag:
		var fv flagValue
		if err := payload.Decode(&fv); err != nil {
			return fmt.Errorf("effect %s: %w", kind, err)
		}
		e.Flag = fv.Flag
		e.Value = stringify(fv.Value)
		if fv.Value == nil {
			e.Value = FlagPresentValue
		}
	default:
		var v any
		if err := payload.Decode(&v); err != nil {
			return fmt.Errorf("effect %s: %w", kind, err)
		}
		e.raw = v
	}
	return nil
}

func (e Effect) MarshalYAML() (any, error) {
	return e.tagged(), nil
}

func (e *Effect) UnmarshalJSON(data []byte) error {
	kind, payload, err := decodeTaggedJSON(data)
	if err != nil {
		return fmt.Errorf("effect: %w", err)
	}
	e.Kind = EffectKind(kind)

	switch e.Kind {
	case EffectAddFlag, EffectRemoveFlag, EffectIncrementCounter:
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("effect %s: %w", kind, err)
		}
		e.Flag = stringify(v)
	case EffectSetFlag:
		var fv flagValue
		if err := json.Unmarshal(payload, &fv); err != nil {
			return fmt.Errorf("effect %s: %w", kind, err)
		}
		e.Flag = fv.Flag
		e.Value = stringify(fv.Value)
		if fv.Value == nil {
			e.Value = FlagPresentValue
		}
	default:
		var v any
		if err := json.Unmarshal(payload, &v); err != nil {
			return fmt.Errorf("effect %s: %w", kind, err)
		}
		e.raw = v
	}
	return nil
}

func (e Effect) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.tagged())
}

func (e Effect) tagged() any {
	switch e.Kind {
	case EffectAddFlag, EffectRemoveFlag, EffectIncrementCounter:
		return map[string]string{string(e.Kind): e.Flag}
	case EffectSetFlag:
		return map[string]flagValue{string(e.Kind): {Flag: e.Flag, Value: e.Value}}
	default:
		return map[string]any{string(e.Kind): e.raw}
	}
}
