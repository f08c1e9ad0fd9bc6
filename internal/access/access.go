// Package access resolves named attributes on arbitrary Go values: exported
// struct fields (by tag or name), zero-argument methods, string-keyed map
// entries and values that expose their own attribute protocol.
package access

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// TagKey is the struct tag consulted for attribute names.
const TagKey = "serializer"

// ErrNotFound reports that an attribute does not exist on a value.
var ErrNotFound = errors.New("attribute not found")

// Getter is implemented by values that resolve attributes themselves.
type Getter interface {
	GetAttr(name string) (any, bool)
}

// Setter is implemented by values that assign attributes themselves.
type Setter interface {
	SetAttr(name string, value any) error
}

// Lister is implemented by values that enumerate their own attributes.
type Lister interface {
	AttrNames() []string
}

type structField struct {
	name  string
	index []int
	typ   reflect.Type
}

type structInfo struct {
	fields []structField
	byKey  map[string]int
}

var structCache sync.Map // map[reflect.Type]*structInfo

// Get returns the attribute name of obj. A nil obj yields nil.
func Get(obj any, name string) (any, error) {
	if obj == nil {
		return nil, nil
	}
	if g, ok := obj.(Getter); ok {
		if v, ok := g.GetAttr(name); ok {
			return v, nil
		}
		if _, isLister := obj.(Lister); isLister {
			if v, ok := callMethod(reflect.ValueOf(obj), name); ok {
				return v, nil
			}
			return nil, fmt.Errorf("%w: %q on %T", ErrNotFound, name, obj)
		}
	}

	rv := reflect.ValueOf(obj)
	if v, ok := callMethod(rv, name); ok {
		return v, nil
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
		if v, ok := callMethod(rv, name); ok {
			return v, nil
		}
	}

	switch rv.Kind() {
	case reflect.Struct:
		info := describe(rv.Type())
		if i, ok := info.lookup(name); ok {
			fv, err := rv.FieldByIndexErr(info.fields[i].index)
			if err != nil {
				// nil embedded pointer on the path
				return nil, nil
			}
			return fv.Interface(), nil
		}
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if mv.IsValid() {
				return mv.Interface(), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q on %T", ErrNotFound, name, obj)
}

// Path resolves a dotted attribute path. A nil value part-way along the path
// yields nil rather than an error.
func Path(obj any, path string) (any, error) {
	cur := obj
	for _, part := range strings.Split(path, ".") {
		if cur == nil {
			return nil, nil
		}
		next, err := Get(cur, part)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// Set assigns value to attribute name on obj. obj must be a pointer to a
// struct, a map with string keys, or implement Setter.
func Set(obj any, name string, value any) error {
	if s, ok := obj.(Setter); ok {
		return s.SetAttr(name, value)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		if rv.IsNil() {
			return fmt.Errorf("cannot set %q on nil map", name)
		}
		val, err := assignable(value, rv.Type().Elem())
		if err != nil {
			return fmt.Errorf("set %q: %w", name, err)
		}
		rv.SetMapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()), val)
		return nil
	}
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("cannot set %q on %T: need a non-nil pointer to a struct", name, obj)
	}
	sv := rv.Elem()
	info := describe(sv.Type())
	i, ok := info.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q on %T", ErrNotFound, name, obj)
	}
	fv, err := sv.FieldByIndexErr(info.fields[i].index)
	if err != nil || !fv.CanSet() {
		return fmt.Errorf("field %q on %T is not settable", name, obj)
	}
	val, err := assignable(value, fv.Type())
	if err != nil {
		return fmt.Errorf("set %q: %w", name, err)
	}
	fv.Set(val)
	return nil
}

// Names lists the public attributes of obj in a stable order: declaration
// order for structs, sorted order for maps.
func Names(obj any) []string {
	if obj == nil {
		return nil
	}
	if l, ok := obj.(Lister); ok {
		return l.AttrNames()
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		info := describe(rv.Type())
		names := make([]string, len(info.fields))
		for i, f := range info.fields {
			names[i] = f.name
		}
		return names
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		names := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			names = append(names, k.String())
		}
		sort.Strings(names)
		return names
	}
	return nil
}

// TypeNames lists the attribute names a struct type declares.
func TypeNames(t reflect.Type) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	info := describe(t)
	names := make([]string, len(info.fields))
	for i, f := range info.fields {
		names[i] = f.name
	}
	return names
}

// Key folds an attribute name so that "first_name", "FirstName" and
// "firstName" compare equal.
func Key(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '_' || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func describe(t reflect.Type) *structInfo {
	if cached, ok := structCache.Load(t); ok {
		return cached.(*structInfo)
	}
	info := &structInfo{byKey: make(map[string]int)}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || (f.Anonymous && indirectKind(f.Type) == reflect.Struct) {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup(TagKey); ok {
			tagName := strings.TrimSpace(strings.Split(tag, ",")[0])
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		idx := len(info.fields)
		info.fields = append(info.fields, structField{name: name, index: f.Index, typ: f.Type})
		if _, dup := info.byKey[name]; !dup {
			info.byKey[name] = idx
		}
		if _, dup := info.byKey[Key(name)]; !dup {
			info.byKey[Key(name)] = idx
		}
		if _, dup := info.byKey[Key(f.Name)]; !dup {
			info.byKey[Key(f.Name)] = idx
		}
	}
	structCache.Store(t, info)
	return info
}

func (s *structInfo) lookup(name string) (int, bool) {
	if i, ok := s.byKey[name]; ok {
		return i, true
	}
	i, ok := s.byKey[Key(name)]
	return i, ok
}

func indirectKind(t reflect.Type) reflect.Kind {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind()
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// callMethod invokes a zero-argument method matching name. Methods returning
// (T, error) are accepted when the error is nil.
func callMethod(rv reflect.Value, name string) (any, bool) {
	if !rv.IsValid() {
		return nil, false
	}
	t := rv.Type()
	if t.NumMethod() == 0 {
		return nil, false
	}
	want := Key(name)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if Key(m.Name) != want {
			continue
		}
		mt := m.Type
		// receiver counts as the first input for Type.Method
		if mt.NumIn() != 1 {
			continue
		}
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, false
		}
		switch {
		case mt.NumOut() == 1:
			return rv.Method(i).Call(nil)[0].Interface(), true
		case mt.NumOut() == 2 && mt.Out(1) == errorType:
			out := rv.Method(i).Call(nil)
			if !out[1].IsNil() {
				return nil, false
			}
			return out[0].Interface(), true
		}
	}
	return nil, false
}

// assignable converts value to type t where Go allows it, including numeric
// conversions between primitive kinds.
func assignable(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if t.Kind() == reflect.Pointer && v.Type().ConvertibleTo(t.Elem()) {
		p := reflect.New(t.Elem())
		p.Elem().Set(v.Convert(t.Elem()))
		return p, nil
	}
	if isNumeric(v.Kind()) && isNumeric(t.Kind()) || v.Kind() == reflect.String && t.Kind() == reflect.String {
		return v.Convert(t), nil
	}
	if t.Kind() == reflect.Slice && v.Kind() == reflect.Slice {
		out := reflect.MakeSlice(t, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := assignable(v.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(item)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %T to %s", value, t)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
