package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// ContentKind discriminates the variants of a Content value.
type ContentKind int

const (
	// KindNull is the JSON null value.
	KindNull ContentKind = iota
	// KindString is a text value.
	KindString
	// KindNumber is a numeric value (stored as float64, like JSON).
	KindNumber
	// KindBool is a boolean value.
	KindBool
	// KindList is an ordered sequence of Content values.
	KindList
	// KindMap is a string-keyed structure of Content values.
	KindMap
)

// Content is the opaque payload of a node.
//
// The engine must neither inspect nor require a fixed schema, so Content is
// a tagged union over the JSON data model: null, string, number, bool,
// sequence, and keyed structure. Values round-trip through snapshots without
// loss - nested objects, numeric arrays, nulls and booleans all survive.
//
// Example:
//
//	c := graph.MapContent(map[string]graph.Content{
//		"nested": graph.MapContent(map[string]graph.Content{
//			"data":    graph.StringContent("t"),
//			"numbers": graph.ListContent(graph.NumberContent(1), graph.NumberContent(2)),
//		}),
//	})
//	data, _ := json.Marshal(c) // {"nested":{"data":"t","numbers":[1,2]}}
type Content struct {
	kind ContentKind
	str  string
	num  float64
	b    bool
	list []Content
	obj  map[string]Content
}

// NullContent returns the null value.
func NullContent() Content { return Content{kind: KindNull} }

// StringContent wraps a string.
func StringContent(s string) Content { return Content{kind: KindString, str: s} }

// NumberContent wraps a number.
func NumberContent(f float64) Content { return Content{kind: KindNumber, num: f} }

// BoolContent wraps a boolean.
func BoolContent(b bool) Content { return Content{kind: KindBool, b: b} }

// ListContent wraps an ordered sequence.
func ListContent(items ...Content) Content { return Content{kind: KindList, list: items} }

// MapContent wraps a keyed structure.
func MapContent(m map[string]Content) Content { return Content{kind: KindMap, obj: m} }

// ContentFromAny converts a decoded JSON value (string, float64, float32,
// int, int64, json.Number, bool, nil, []any, or map[string]any) into
// Content. Any other type is rejected with ErrInvalidData.
func ContentFromAny(v any) (Content, error) {
	switch t := v.(type) {
	case nil:
		return NullContent(), nil
	case string:
		return StringContent(t), nil
	case bool:
		return BoolContent(t), nil
	case float64:
		return NumberContent(t), nil
	case float32:
		return NumberContent(float64(t)), nil
	case int:
		return NumberContent(float64(t)), nil
	case int64:
		return NumberContent(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Content{}, fmt.Errorf("content: %w", err)
		}
		return NumberContent(f), nil
	case []any:
		items := make([]Content, len(t))
		for i, e := range t {
			c, err := ContentFromAny(e)
			if err != nil {
				return Content{}, err
			}
			items[i] = c
		}
		return Content{kind: KindList, list: items}, nil
	case map[string]any:
		m := make(map[string]Content, len(t))
		for k, e := range t {
			c, err := ContentFromAny(e)
			if err != nil {
				return Content{}, err
			}
			m[k] = c
		}
		return Content{kind: KindMap, obj: m}, nil
	default:
		return Content{}, fmt.Errorf("content: unsupported type %T: %w", v, ErrInvalidData)
	}
}

// Kind returns the variant tag.
func (c Content) Kind() ContentKind { return c.kind }

// IsZero reports whether the content is the zero value (null).
// A freshly-declared Content is null; callers that require content to be
// present should check the node-level validation, not IsZero.
func (c Content) IsZero() bool { return c.kind == KindNull }

// String returns the string value and whether the content is a string.
func (c Content) String() (string, bool) { return c.str, c.kind == KindString }

// Number returns the numeric value and whether the content is a number.
func (c Content) Number() (float64, bool) { return c.num, c.kind == KindNumber }

// Bool returns the boolean value and whether the content is a bool.
func (c Content) Bool() (bool, bool) { return c.b, c.kind == KindBool }

// List returns the sequence and whether the content is a list.
func (c Content) List() ([]Content, bool) { return c.list, c.kind == KindList }

// Map returns the keyed structure and whether the content is a map.
func (c Content) Map() (map[string]Content, bool) { return c.obj, c.kind == KindMap }

// Text renders the content as a flat string for tokenization. Strings render
// verbatim; numbers and bools via fmt; lists and maps concatenate their
// members' text separated by spaces (map values in key order for stability).
func (c Content) Text() string {
	switch c.kind {
	case KindString:
		return c.str
	case KindNumber:
		return fmt.Sprintf("%v", c.num)
	case KindBool:
		return fmt.Sprintf("%v", c.b)
	case KindList:
		out := ""
		for i, item := range c.list {
			if i > 0 {
				out += " "
			}
			out += item.Text()
		}
		return out
	case KindMap:
		keys := make([]string, 0, len(c.obj))
		for k := range c.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := ""
		for i, k := range keys {
			if i > 0 {
				out += " "
			}
			out += k + " " + c.obj[k].Text()
		}
		return out
	default:
		return ""
	}
}

// Equal reports deep structural equality. Numbers compare exactly; NaN never
// equals anything, matching JSON semantics.
func (c Content) Equal(o Content) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindNull:
		return true
	case KindString:
		return c.str == o.str
	case KindNumber:
		return c.num == o.num && !math.IsNaN(c.num)
	case KindBool:
		return c.b == o.b
	case KindList:
		if len(c.list) != len(o.list) {
			return false
		}
		for i := range c.list {
			if !c.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(c.obj) != len(o.obj) {
			return false
		}
		for k, v := range c.obj {
			ov, ok := o.obj[k]
			if !ok || !v.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy.
func (c Content) Clone() Content {
	switch c.kind {
	case KindList:
		items := make([]Content, len(c.list))
		for i, item := range c.list {
			items[i] = item.Clone()
		}
		return Content{kind: KindList, list: items}
	case KindMap:
		m := make(map[string]Content, len(c.obj))
		for k, v := range c.obj {
			m[k] = v.Clone()
		}
		return Content{kind: KindMap, obj: m}
	default:
		return c
	}
}

// MarshalJSON encodes the content as its original JSON form.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(c.str)
	case KindNumber:
		return json.Marshal(c.num)
	case KindBool:
		return json.Marshal(c.b)
	case KindList:
		if c.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.list)
	case KindMap:
		if c.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(c.obj)
	}
	return nil, fmt.Errorf("content: unknown kind %d", c.kind)
}

// UnmarshalJSON decodes any JSON value into the matching variant.
func (c *Content) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	decoded, err := ContentFromAny(v)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}
