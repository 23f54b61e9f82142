package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is a field value at the model boundary: either unresolved or present.
// A present value may still be empty (blank string, empty list); IsFilled
// distinguishes the two.
type Value struct {
	raw     any
	present bool
}

// Present wraps v as a resolved value. A nil v is treated as unresolved.
func Present(v any) Value {
	if v == nil {
		return Value{}
	}
	return Value{raw: v, present: true}
}

// Unresolved returns the zero Value.
func Unresolved() Value {
	return Value{}
}

// IsPresent reports whether the value was resolved.
func (v Value) IsPresent() bool {
	return v.present
}

// Raw returns the underlying value, or nil when unresolved. Lists and objects
// are copied.
func (v Value) Raw() any {
	return cloneRaw(v.raw)
}

// IsFilled reports whether the value is present and non-empty.
func (v Value) IsFilled() bool {
	if !v.present {
		return false
	}
	switch t := v.raw.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case []map[string]any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// String renders the value as text. Unresolved values render as "".
func (v Value) String() string {
	if !v.present {
		return ""
	}
	switch t := v.raw.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v.raw)
}

// Float returns the numeric value when the underlying value is a number.
func (v Value) Float() (float64, bool) {
	if !v.present {
		return 0, false
	}
	switch t := v.raw.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// Bool returns the boolean value when the underlying value is a bool.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok && v.present
}

// Items returns the value as a list of objects, skipping non-object entries.
func (v Value) Items() []map[string]any {
	if !v.present {
		return nil
	}
	switch t := v.raw.(type) {
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, m := range t {
			out[i] = cloneRaw(m).(map[string]any)
		}
		return out
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, it := range t {
			if m, ok := it.(map[string]any); ok {
				out = append(out, cloneRaw(m).(map[string]any))
			}
		}
		return out
	}
	return nil
}

func cloneRaw(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneRaw(e)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneRaw(e)
		}
		return out
	case []map[string]any:
		if t == nil {
			return t
		}
		out := make([]map[string]any, len(t))
		for i, m := range t {
			out[i] = cloneRaw(m).(map[string]any)
		}
		return out
	}
	return v
}

// MarshalJSON encodes unresolved values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.present {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}

// UnmarshalJSON decodes null as unresolved.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Present(raw)
	return nil
}
