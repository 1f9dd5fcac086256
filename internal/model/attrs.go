package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Attributes holds the raw JSON attributes of an entity.
type Attributes map[string]any

// Clone returns a deep copy of the attributes.
func (a Attributes) Clone() Attributes {
	return Attributes(deepCopyMap(a))
}

// String returns the string value for key.
func (a Attributes) String(key string) (string, bool) {
	s, ok := a[key].(string)
	return s, ok
}

// Bool returns the boolean value for key.
func (a Attributes) Bool(key string) (bool, bool) {
	b, ok := a[key].(bool)
	return b, ok
}

// Float returns the numeric value for key.
func (a Attributes) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns the numeric value for key truncated to an int64.
func (a Attributes) Int(key string) (int64, bool) {
	f, ok := a.Float(key)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// Object returns the nested object stored under key.
func (a Attributes) Object(key string) (Attributes, bool) {
	m, ok := a[key].(map[string]any)
	return Attributes(m), ok
}

// Strings returns the string slice stored under key. Non-string elements
// are skipped.
func (a Attributes) Strings(key string) []string {
	raw, ok := a[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// str returns the string under key or "".
func (a Attributes) str(key string) string {
	s, _ := a.String(key)
	return s
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Attributes:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// mergeInto applies src onto dst. Nested objects present on both sides are
// merged key by key; every other value is replaced.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeInto(dv, sv)
				continue
			}
		}
		dst[k] = deepCopyValue(v)
	}
}

// decodeObject unmarshals raw into a JSON object.
func decodeObject(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrValidation)
	}
	return m, nil
}

// checkID rejects a patch whose id differs from the entity id.
func checkID(kind Kind, current string, patch map[string]any) error {
	v, ok := patch["id"]
	if !ok {
		return nil
	}
	if id, _ := v.(string); id != current {
		return fmt.Errorf("%w: %s id is immutable (have %q, patch %v)", ErrValidation, kind, current, v)
	}
	return nil
}
