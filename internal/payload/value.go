// Package payload holds the parsed webhook body as a typed JSON tree.
//
// A Value is a tagged union over the six JSON kinds. Key-path traversal walks
// objects only; arrays are never indexed.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind identifies the JSON type held by a Value.
type Kind uint8

const (
	Null Kind = iota
	String
	Number
	Bool
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable JSON value.
type Value struct {
	kind Kind
	str  string
	num  json.Number
	b    bool
	obj  map[string]Value
	arr  []Value
}

// Constructors, mostly for tests.
func NullValue() Value            { return Value{kind: Null} }
func StringValue(s string) Value  { return Value{kind: String, str: s} }
func NumberValue(n string) Value  { return Value{kind: Number, num: json.Number(n)} }
func BoolValue(b bool) Value      { return Value{kind: Bool, b: b} }
func ArrayValue(v ...Value) Value { return Value{kind: Array, arr: v} }
func ObjectValue(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: Object, obj: m}
}

// Kind returns the JSON type of v.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string content and whether v is a string.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == String
}

// Len returns the number of members of an object or elements of an array.
func (v Value) Len() int {
	switch v.kind {
	case Object:
		return len(v.obj)
	case Array:
		return len(v.arr)
	}
	return 0
}

// Get looks up key in an object. It reports false for a missing key or when v
// is not an object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	child, ok := v.obj[key]
	return child, ok
}

// Lookup walks keys from v, one object member per step.
func (v Value) Lookup(keys ...string) (Value, error) {
	cur := v
	for i, key := range keys {
		if cur.kind != Object {
			return Value{}, &LookupError{Keys: keys, Step: i, Reason: ErrNotObject, Found: cur.kind}
		}
		next, ok := cur.obj[key]
		if !ok {
			return Value{}, &LookupError{Keys: keys, Step: i, Reason: ErrMissingKey, Found: cur.kind}
		}
		cur = next
	}
	return cur, nil
}

// Text renders v as a spreadsheet cell. Strings are returned as is, numbers
// keep their literal text, null becomes the empty string and containers are
// rendered as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case String:
		return v.str
	case Number:
		return v.num.String()
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Null:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// MarshalJSON encodes v back to JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(v.str)
	case Number:
		return []byte(v.num.String()), nil
	case Bool:
		return json.Marshal(v.b)
	case Array:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case Object:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	}
	return nil, fmt.Errorf("payload: unknown kind %d", v.kind)
}

var (
	ErrMissingKey = errors.New("missing key")
	ErrNotObject  = errors.New("not an object")
)

// LookupError reports the step at which a key path could not be followed.
type LookupError struct {
	Keys   []string
	Step   int
	Reason error
	Found  Kind
}

func (e *LookupError) Error() string {
	walked := strings.Join(e.Keys[:e.Step+1], "->")
	if errors.Is(e.Reason, ErrNotObject) {
		return fmt.Sprintf("%s: cannot index %s with %q", walked, e.Found, e.Keys[e.Step])
	}
	return fmt.Sprintf("%s: %v", walked, e.Reason)
}

func (e *LookupError) Unwrap() error { return e.Reason }

// Parse decodes exactly one JSON document.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, fmt.Errorf("parse payload: empty body")
		}
		return Value{}, fmt.Errorf("parse payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("parse payload: unexpected data after JSON document")
	}

	return fromAny(raw)
}

func fromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return NullValue(), nil
	case string:
		return StringValue(x), nil
	case json.Number:
		return Value{kind: Number, num: x}, nil
	case bool:
		return BoolValue(x), nil
	case []any:
		arr := make([]Value, len(x))
		for i, el := range x {
			v, err := fromAny(el)
			if err != nil {
				return Value{}, err
			}
			arr[i] = v
		}
		return Value{kind: Array, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]Value, len(x))
		for k, el := range x {
			v, err := fromAny(el)
			if err != nil {
				return Value{}, err
			}
			obj[k] = v
		}
		return Value{kind: Object, obj: obj}, nil
	default:
		return Value{}, fmt.Errorf("parse payload: unsupported JSON type %T", raw)
	}
}
