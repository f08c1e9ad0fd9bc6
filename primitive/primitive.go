// Package primitive defines the closed set of values that cross the codec
// boundary: nil, bool, int64, float64, string, time.Time, []any sequences and
// ordered *Map mappings of the same.
//
// Nothing else is ever produced by a conversion or accepted by a renderer.
package primitive

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"
)

// Kind identifies which member of the closed primitive set a value is.
type Kind int

const (
	Invalid Kind = iota
	Null
	Bool
	Int
	Float
	String
	DateTime
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case DateTime:
		return "datetime"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	default:
		return "invalid"
	}
}

var timeType = reflect.TypeOf(time.Time{})

// KindOf reports the primitive kind of v without normalising it. Values of
// any other Go type report Invalid.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case int64:
		return Int
	case float64:
		return Float
	case string:
		return String
	case time.Time:
		return DateTime
	case []any:
		return Sequence
	case *Map:
		return Mapping
	default:
		return Invalid
	}
}

// IsScalar reports whether v is a scalar primitive (anything but a sequence
// or mapping) once normalised.
func IsScalar(v any) bool {
	n, ok := Normalize(v)
	if !ok {
		return false
	}
	k := KindOf(n)
	return k != Sequence && k != Mapping
}

// Normalize converts Go scalar values to their canonical primitive form:
// every integer kind becomes int64, float kinds become float64, and named
// string or bool types lose their name. Sequences and mappings that are
// already primitive are returned unchanged. The second result is false when
// v is not scalar-convertible.
func Normalize(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case bool, int64, float64, string, time.Time, []any, *Map:
		return val, true
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint:
		return normalizeUint(uint64(val)), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return normalizeUint(val), true
	case float32:
		return float64(val), true
	case *time.Time:
		if val == nil {
			return nil, true
		}
		return *val, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return normalizeUint(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return rv.String(), true
	case reflect.Struct:
		if rv.Type().ConvertibleTo(timeType) {
			return rv.Convert(timeType).Interface(), true
		}
	}
	return nil, false
}

// normalizeUint keeps unsigned values that do not fit an int64 as a
// float64 rather than silently wrapping.
func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// Validate walks v and returns an error naming the first value that is not
// part of the primitive set.
func Validate(v any) error {
	return validate(v, "$")
}

func validate(v any, path string) error {
	switch val := v.(type) {
	case nil, bool, int64, float64, string, time.Time:
		return nil
	case []any:
		for i, item := range val {
			if err := validate(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case *Map:
		if val == nil {
			return fmt.Errorf("primitive: nil mapping at %s", path)
		}
		for _, key := range val.keys {
			if err := validate(val.values[key], path+"."+key); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("primitive: value of type %T at %s is not a primitive", v, path)
	}
}

// Equal reports whether a and b are deeply equal primitive structures.
// Mapping comparison is order sensitive; times compare with time.Time.Equal.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for i, key := range av.keys {
			if bv.keys[i] != key || !Equal(av.values[key], bv.values[key]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// FromGo converts plain decoded Go data (as produced by encoding/json,
// yaml.v3 or cbor into `any`) into the primitive set. Maps become *Map with
// keys sorted, since Go maps carry no order.
func FromGo(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			item, err := FromGo(val[k])
			if err != nil {
				return nil, err
			}
			m.Set(k, item)
		}
		return m, nil
	case map[any]any:
		converted := make(map[string]any, len(val))
		for k, item := range val {
			converted[fmt.Sprint(k)] = item
		}
		return FromGo(converted)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			converted, err := FromGo(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case *Map:
		return val, nil
	}
	n, ok := Normalize(v)
	if !ok {
		return nil, fmt.Errorf("primitive: cannot convert %T", v)
	}
	return n, nil
}

// ToGo converts a primitive structure into plain Go maps and slices, losing
// key order. Useful for codecs that only accept map[string]any.
func ToGo(v any) any {
	switch val := v.(type) {
	case *Map:
		out := make(map[string]any, val.Len())
		for _, key := range val.keys {
			out[key] = ToGo(val.values[key])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ToGo(item)
		}
		return out
	default:
		return v
	}
}
