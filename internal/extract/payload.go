package extract

import (
	"bytes"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Kind is the closed set of shapes a message detail payload can take.
type Kind int

const (
	// KindUnrecognized covers null, numbers, booleans, arrays and invalid JSON.
	KindUnrecognized Kind = iota
	// KindText is a bare string body.
	KindText
	// KindObject is a JSON object; its fields keep document order.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindObject:
		return "object"
	default:
		return "unrecognized"
	}
}

// jsonAPI leaves <, > and & unescaped so links survive re-serialization.
var jsonAPI = jsoniter.Config{EscapeHTML: false, SortMapKeys: true, ValidateJsonRawMessage: true}.Froze()

// Field is one property of an object payload.
type Field struct {
	Key string
	Raw []byte
}

// Payload is a parsed message detail.
type Payload struct {
	Kind   Kind
	Text   string
	Fields []Field
}

// TextPayload wraps an already-decoded string body.
func TextPayload(s string) Payload {
	return Payload{Kind: KindText, Text: s}
}

// ParsePayload classifies raw JSON. It never fails: anything that is not a
// string or an object comes back as KindUnrecognized.
func ParsePayload(data []byte) Payload {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !jsonAPI.Valid(data) {
		return Payload{Kind: KindUnrecognized}
	}

	switch data[0] {
	case '"':
		var s string
		if err := jsonAPI.Unmarshal(data, &s); err != nil {
			return Payload{Kind: KindUnrecognized}
		}
		return TextPayload(s)
	case '{':
		fields, ok := readFields(data)
		if !ok {
			return Payload{Kind: KindUnrecognized}
		}
		return Payload{Kind: KindObject, Fields: fields}
	default:
		return Payload{Kind: KindUnrecognized}
	}
}

// readFields walks a JSON object and returns its members in document order.
// Duplicate keys keep their first position and last value, matching how a
// decoded map would resolve them.
func readFields(data []byte) ([]Field, bool) {
	iter := jsonAPI.BorrowIterator(data)
	defer jsonAPI.ReturnIterator(iter)

	var fields []Field
	index := map[string]int{}
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		raw := append([]byte(nil), it.SkipAndReturnBytes()...)
		raw = bytes.TrimSpace(raw)
		if i, seen := index[key]; seen {
			fields[i].Raw = raw
			return true
		}
		index[key] = len(fields)
		fields = append(fields, Field{Key: key, Raw: raw})
		return true
	})
	if iter.Error != nil {
		return nil, false
	}
	return fields, true
}

// Field returns the named property of an object payload.
func (p Payload) Field(name string) (Field, bool) {
	for _, f := range p.Fields {
		if f.Key == name {
			return f, true
		}
	}
	return Field{}, false
}

// Keys lists object property names in document order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p.Fields))
	for _, f := range p.Fields {
		keys = append(keys, f.Key)
	}
	return keys
}

// Flatten renders an object payload as plain text: every string value, at any
// depth, decoded and in document order, one per line. Keys, numbers, booleans
// and nulls are dropped.
func (p Payload) Flatten() string {
	switch p.Kind {
	case KindText:
		return p.Text
	case KindObject:
	default:
		return ""
	}

	var leaves []string
	for _, f := range p.Fields {
		iter := jsoniter.ParseBytes(jsonAPI, f.Raw)
		leaves = appendStringLeaves(iter, leaves)
		if iter.Error != nil {
			break
		}
	}
	return strings.Join(leaves, "\n")
}

func appendStringLeaves(iter *jsoniter.Iterator, out []string) []string {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		out = append(out, iter.ReadString())
	case jsoniter.ObjectValue:
		iter.ReadObjectCB(func(it *jsoniter.Iterator, _ string) bool {
			out = appendStringLeaves(it, out)
			return it.Error == nil
		})
	case jsoniter.ArrayValue:
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			out = appendStringLeaves(it, out)
			return it.Error == nil
		})
	default:
		iter.Skip()
	}
	return out
}

// String returns the field's value when it is a JSON string.
func (f Field) String() (string, bool) {
	if len(f.Raw) == 0 || f.Raw[0] != '"' {
		return "", false
	}
	var s string
	if err := jsonAPI.Unmarshal(f.Raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Text coerces the field to body text. Empty strings, zero, false, null,
// objects and arrays holding anything but strings yield ok=false. Arrays of
// strings are joined with newlines.
func (f Field) Text() (string, bool) {
	if len(f.Raw) == 0 {
		return "", false
	}
	switch c := f.Raw[0]; {
	case c == '"':
		s, ok := f.String()
		return s, ok && s != ""
	case c == 't':
		return "true", true
	case c == 'f', c == 'n', c == '{':
		return "", false
	case c == '[':
		var parts []string
		if err := jsonAPI.Unmarshal(f.Raw, &parts); err != nil {
			return "", false
		}
		joined := strings.Join(parts, "\n")
		return joined, joined != ""
	default:
		n, err := strconv.ParseFloat(string(f.Raw), 64)
		if err != nil || n == 0 {
			return "", false
		}
		return string(f.Raw), true
	}
}
