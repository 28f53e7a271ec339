package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ValueKind discriminates the shapes a Value can take.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a structured JSON-like payload carried alongside a formatted
// response. Unlike map[string]any, object members keep their insertion
// order, so an encode/decode round-trip can be compared structurally.
type Value struct {
	kind ValueKind
	b    bool
	num  json.Number
	str  string
	arr  []*Value
	keys []string
	obj  map[string]*Value
}

func Null() *Value            { return &Value{kind: KindNull} }
func Bool(b bool) *Value      { return &Value{kind: KindBool, b: b} }
func String(s string) *Value  { return &Value{kind: KindString, str: s} }
func Number(n string) *Value  { return &Value{kind: KindNumber, num: json.Number(n)} }
func Array(vs ...*Value) *Value {
	return &Value{kind: KindArray, arr: vs}
}

// Object returns an empty ordered object value.
func Object() *Value {
	return &Value{kind: KindObject, obj: map[string]*Value{}}
}

func (v *Value) Kind() ValueKind { return v.kind }

// Set adds or replaces an object member, preserving first-insertion order.
// It panics if v is not an object, mirroring the misuse semantics of
// indexing a non-map.
func (v *Value) Set(key string, member *Value) *Value {
	if v.kind != KindObject {
		panic("domain: Set on non-object value")
	}
	if _, ok := v.obj[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.obj[key] = member
	return v
}

// Get returns the member for key, if present.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.kind != KindObject {
		return nil, false
	}
	m, ok := v.obj[key]
	return m, ok
}

// Keys returns object member names in insertion order.
func (v *Value) Keys() []string {
	if v == nil || v.kind != KindObject {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Items returns the elements of an array value.
func (v *Value) Items() []*Value {
	if v == nil || v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Len returns the member count for arrays and objects, zero otherwise.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.keys)
	}
	return 0
}

func (v *Value) StringValue() string { return v.str }

// Equal reports deep structural equality. Numbers compare by their literal
// representation, which is exact for round-tripped payloads.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for i, k := range v.keys {
			if o.keys[i] != k || !v.obj[k].Equal(o.obj[k]) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON renders the value with object members in insertion order.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) write(buf *bytes.Buffer) error {
	if v == nil {
		buf.WriteString("null")
		return nil
	}
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(v.num.String())
	case KindString:
		raw, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.write(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			raw, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(raw)
			buf.WriteByte(':')
			if err := v.obj[k].write(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("domain: marshal unknown value kind %d", v.kind)
	}
	return nil
}

// ParseValue decodes a single JSON value, preserving object member order.
// Trailing non-whitespace input is an error.
func ParseValue(raw string) (*Value, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("domain: trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("domain: decode value: %w", err)
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t.String()), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := Object()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("domain: decode object key: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("domain: object key is %T, not string", keyTok)
				}
				member, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, member)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, fmt.Errorf("domain: decode object end: %w", err)
			}
			return obj, nil
		case '[':
			arr := Array()
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr.arr = append(arr.arr, item)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, fmt.Errorf("domain: decode array end: %w", err)
			}
			return arr, nil
		}
	}
	return nil, fmt.Errorf("domain: unexpected token %v", tok)
}
