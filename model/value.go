package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind is the runtime type of a flag Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindNumber
	KindString
	// KindJSON holds objects, arrays and null.
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	default:
		return "invalid"
	}
}

// Value is the resolved value of one flag. The zero Value has KindInvalid.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	raw  json.RawMessage
}

// BoolValue returns a KindBool Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// NumberValue returns a KindNumber Value.
func NumberValue(n float64) Value { return Value{kind: KindNumber, n: n} }

// StringValue returns a KindString Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// JSONValue wraps an opaque JSON document. The bytes are copied.
func JSONValue(raw json.RawMessage) Value {
	return Value{kind: KindJSON, raw: append(json.RawMessage(nil), raw...)}
}

// ValueFromJSON classifies a raw value_json document into a Value. Empty input
// is treated as JSON null.
func ValueFromJSON(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return JSONValue(json.RawMessage("null")), nil
	}
	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case '{', '[', 'n':
		if !json.Valid(trimmed) {
			return Value{}, fmt.Errorf("invalid JSON value %q", trimmed)
		}
		return JSONValue(trimmed), nil
	default:
		n, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil || !json.Valid(trimmed) {
			return Value{}, fmt.Errorf("invalid JSON value %q", trimmed)
		}
		return NumberValue(n), nil
	}
}

// Kind reports the runtime type of v.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean held by v and whether v is a KindBool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the number held by v and whether v is a KindNumber.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string held by v and whether v is a KindString.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Raw returns the JSON encoding of v.
func (v Value) Raw() json.RawMessage {
	switch v.kind {
	case KindBool:
		return json.RawMessage(strconv.FormatBool(v.b))
	case KindNumber:
		data, _ := json.Marshal(v.n)
		return data
	case KindString:
		data, _ := json.Marshal(v.s)
		return data
	case KindJSON:
		return append(json.RawMessage(nil), v.raw...)
	default:
		return nil
	}
}

// Interface returns v as a plain Go value, decoding JSON values.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindJSON:
		var out interface{}
		if err := json.Unmarshal(v.raw, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same kind and value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindJSON:
		return bytes.Equal(v.raw, o.raw)
	default:
		return true
	}
}

// MarshalJSON encodes v as its raw JSON. An invalid Value encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return []byte("null"), nil
	}
	return v.Raw(), nil
}

// UnmarshalJSON classifies data the same way ValueFromJSON does.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ValueFromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
