package cache

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a JSON-safe filter value. Only the constructors below can build one,
// so anything reaching BuildKey is serializable by construction.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Null returns the JSON null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(n int64) Value { return Value{kind: KindNumber, n: float64(n)} }

// Float wraps a float. NaN and infinities are rejected when the value is encoded.
func Float(f float64) Value { return Value{kind: KindNumber, n: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a list of values.
func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: append([]Value(nil), items...)}
}

// Strings is a shorthand for an array of strings.
func Strings(items ...string) Value {
	arr := make([]Value, len(items))
	for i, s := range items {
		arr[i] = String(s)
	}
	return Value{kind: KindArray, arr: arr}
}

// Object wraps a nested map.
func Object(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindObject, obj: cp}
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// MarshalJSON encodes the value canonically (object keys sorted).
// It panics on NaN or infinite numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.encode(&buf)
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			panic(fmt.Sprintf("cache: filter value %v is not JSON-serializable", v.n))
		}
		buf.WriteString(strconv.FormatFloat(v.n, 'f', -1, 64))
	case KindString:
		writeJSONString(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.encode(buf)
		}
		buf.WriteByte(']')
	case KindObject:
		encodeObject(buf, v.obj)
	default:
		panic(fmt.Sprintf("cache: unknown value kind %d", v.kind))
	}
}

func encodeObject(buf *bytes.Buffer, m map[string]Value) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, k)
		buf.WriteByte(':')
		m[k].encode(buf)
	}
	buf.WriteByte('}')
}

func writeJSONString(buf *bytes.Buffer, s string) {
	data, err := json.Marshal(s)
	if err != nil {
		// strings always marshal; anything else is a bug in the encoder
		panic(fmt.Sprintf("cache: encode string: %v", err))
	}
	buf.Write(data)
}

// Filters is the normalized parameter set a cache key is derived from.
// Absent optional filters must simply be left out of the map.
type Filters map[string]Value

// FiltersFromQuery converts query parameters into Filters. Single values become
// strings, repeated values become string arrays, and empty values are dropped so
// that "?status=" and no status at all produce the same key. Names listed in skip
// are ignored.
func FiltersFromQuery(q url.Values, skip ...string) Filters {
	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
	}

	f := make(Filters, len(q))
	for name, values := range q {
		if _, ok := skipped[name]; ok {
			continue
		}
		nonEmpty := values[:0:0]
		for _, v := range values {
			if v != "" {
				nonEmpty = append(nonEmpty, v)
			}
		}
		switch len(nonEmpty) {
		case 0:
			continue
		case 1:
			f[name] = String(nonEmpty[0])
		default:
			f[name] = Strings(nonEmpty...)
		}
	}
	return f
}

// With returns a copy of f with name set to v.
func (f Filters) With(name string, v Value) Filters {
	cp := make(Filters, len(f)+1)
	for k, val := range f {
		cp[k] = val
	}
	cp[name] = v
	return cp
}
