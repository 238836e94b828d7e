package anchorhold

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which member of the Value union is populated.
type Kind string

// The closed set of value kinds.
const (
	KindNull   Kind = "null"
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindDouble Kind = "double"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// Value is one dynamically typed metadata value:
// a closed tagged union of string, int, double, bool,
// list-of-Value, map-of-string-to-Value, and null.
// The zero Value is null.
//
// Accessors return a second, boolean result
// that is false on a kind mismatch;
// they never panic and never coerce.
type Value struct {
	kind Kind
	str  string
	num  float64
	i    int64
	b    bool
	list []Value
	m    map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Double returns a double Value.
func Double(f float64) Value { return Value{kind: KindDouble, num: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// List returns a list Value containing the given items.
func List(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// Map returns a map Value containing the given entries.
func Map(entries map[string]Value) Value {
	out := make(map[string]Value, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return Value{kind: KindMap, m: out}
}

// Kind reports which member of the union v holds.
func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Kind() == KindNull }

// AsString returns the string member of v, if that's what v holds.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsInt returns the integer member of v, if that's what v holds.
func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindInt
}

// AsDouble returns the double member of v, if that's what v holds.
func (v Value) AsDouble() (float64, bool) {
	return v.num, v.kind == KindDouble
}

// AsBool returns the boolean member of v, if that's what v holds.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsList returns the list member of v, if that's what v holds.
// The result is a copy.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

// AsMap returns the map member of v, if that's what v holds.
// The result is a copy.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	out := make(map[string]Value, len(v.m))
	for k, item := range v.m {
		out[k] = item
	}
	return out, true
}

// Equal reports whether v and other hold the same kind and the same contents.
func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.i == other.i
	case KindDouble:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, item := range v.m {
			o, ok := other.m[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	out := v
	if v.list != nil {
		out.list = make([]Value, len(v.list))
		for i, item := range v.list {
			out.list[i] = item.Clone()
		}
	}
	if v.m != nil {
		out.m = make(map[string]Value, len(v.m))
		for k, item := range v.m {
			out.m[k] = item.Clone()
		}
	}
	return out
}

// valueJSON is the envelope a Value serializes as: a kind tag plus the value.
type valueJSON struct {
	T Kind            `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	env := valueJSON{T: v.Kind()}

	var (
		inner interface{}
		has   bool
	)
	switch v.Kind() {
	case KindNull:
	case KindString:
		inner, has = v.str, true
	case KindInt:
		inner, has = v.i, true
	case KindDouble:
		inner, has = v.num, true
	case KindBool:
		inner, has = v.b, true
	case KindList:
		if v.list == nil {
			inner, has = []Value{}, true
		} else {
			inner, has = v.list, true
		}
	case KindMap:
		if v.m == nil {
			inner, has = map[string]Value{}, true
		} else {
			inner, has = v.m, true
		}
	}
	if has {
		raw, err := json.Marshal(inner)
		if err != nil {
			return nil, errors.Wrap(err, "marshaling value member")
		}
		env.V = raw
	}
	return json.Marshal(env)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var env valueJSON
	err := json.Unmarshal(data, &env)
	if err != nil {
		return errors.Wrap(err, "unmarshaling value envelope")
	}

	switch env.T {
	case KindNull, "":
		*v = Null()
	case KindString:
		var s string
		if err := json.Unmarshal(env.V, &s); err != nil {
			return errors.Wrap(err, "unmarshaling string member")
		}
		*v = String(s)
	case KindInt:
		var i int64
		if err := json.Unmarshal(env.V, &i); err != nil {
			return errors.Wrap(err, "unmarshaling int member")
		}
		*v = Int(i)
	case KindDouble:
		var f float64
		if err := json.Unmarshal(env.V, &f); err != nil {
			return errors.Wrap(err, "unmarshaling double member")
		}
		*v = Double(f)
	case KindBool:
		var b bool
		if err := json.Unmarshal(env.V, &b); err != nil {
			return errors.Wrap(err, "unmarshaling bool member")
		}
		*v = Bool(b)
	case KindList:
		var list []Value
		if err := json.Unmarshal(env.V, &list); err != nil {
			return errors.Wrap(err, "unmarshaling list member")
		}
		*v = Value{kind: KindList, list: list}
	case KindMap:
		var m map[string]Value
		if err := json.Unmarshal(env.V, &m); err != nil {
			return errors.Wrap(err, "unmarshaling map member")
		}
		*v = Value{kind: KindMap, m: m}
	default:
		return fmt.Errorf("unknown value kind %q", env.T)
	}
	return nil
}

// Metadata is an anchor's annotation bag: string keys to tagged values.
type Metadata map[string]Value

// Equal reports whether m and other hold the same entries.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of m. Clone of nil is nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}
