package primitive

import (
	"maps"
	"strings"
)

// Map is an insertion-ordered string-keyed mapping. Each key may carry a set
// of format hints (for example XML attributes) next to its value; hints never
// leave the Map as values.
type Map struct {
	keys   []string
	values map[string]any
	attrs  map[string]map[string]string
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]any)}
}

// Set stores value under key. A new key is appended to the key order; an
// existing key keeps its position.
func (m *Map) Set(key string, value any) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// SetWithAttrs stores value and its format hints under key.
func (m *Map) SetWithAttrs(key string, value any, attrs map[string]string) {
	m.Set(key, value)
	if len(attrs) == 0 {
		return
	}
	if m.attrs == nil {
		m.attrs = make(map[string]map[string]string)
	}
	m.attrs[key] = maps.Clone(attrs)
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key and its hints.
func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	delete(m.attrs, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in order. The slice is a copy.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Attrs returns the format hints stored for key, or nil.
func (m *Map) Attrs(key string) map[string]string {
	if m == nil {
		return nil
	}
	return m.attrs[key]
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(key string, value any) bool) {
	if m == nil {
		return
	}
	for _, key := range m.keys {
		if !fn(key, m.values[key]) {
			return
		}
	}
}

func (m *Map) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, key := range m.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(key)
		b.WriteString(": ")
		writeValue(&b, m.values[key])
	}
	b.WriteString("}")
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case *Map:
		b.WriteString(val.String())
	case []any:
		b.WriteString("[")
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, item)
		}
		b.WriteString("]")
	case nil:
		b.WriteString("null")
	default:
		b.WriteString(Text(val))
	}
}
