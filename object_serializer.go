package serializers

import (
	"encoding"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/hengadev/serializers/internal/access"
	"github.com/hengadev/serializers/primitive"
)

// ObjectFields discovers the public attributes of plain Go values: exported
// struct fields and string map keys. Attributes are sorted by name; names
// starting with an underscore are skipped.
//
// Reverting needs a class to discover fields from. Use WithClass with a
// reflect.Type; without one, reverting through ObjectFields is a
// configuration error.
type ObjectFields struct{}

func (p ObjectFields) DefaultFields(t *Traversal, s *Serializer, obj any, class any, nested bool) ([]NamedField, error) {
	names, err := p.names(obj, class)
	if err != nil {
		return nil, err
	}
	fields := make([]NamedField, 0, len(names))
	for _, name := range names {
		field, err := p.field(obj, name, nested)
		if err != nil {
			return nil, err
		}
		fields = append(fields, NamedField{Name: name, Field: field})
	}
	return fields, nil
}

func (p ObjectFields) FieldFor(t *Traversal, s *Serializer, obj any, class any, name string, nested bool) (Field, error) {
	if obj == nil {
		if typ, ok := class.(reflect.Type); ok && slices.Contains(access.TypeNames(typ), name) {
			return NewField(), nil
		}
		return nil, nil
	}
	if _, err := access.Get(obj, name); err != nil {
		return nil, nil
	}
	return p.field(obj, name, nested)
}

func (ObjectFields) names(obj any, class any) ([]string, error) {
	var names []string
	switch {
	case obj != nil:
		names = access.Names(obj)
	case class != nil:
		typ, ok := class.(reflect.Type)
		if !ok {
			return nil, NewConfigurationError("object fields cannot be discovered from class %T", class)
		}
		names = access.TypeNames(typ)
	default:
		return nil, NewConfigurationError("object fields cannot be discovered without an object or a class")
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, "_") {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (ObjectFields) field(obj any, name string, nested bool) (Field, error) {
	if obj == nil {
		return NewField(), nil
	}
	value, err := access.Get(obj, name)
	if err != nil || !isComposite(value) {
		return NewField(), nil
	}
	if !nested {
		return NewFlatField(), nil
	}
	child, err := newObjectSerializer(nil, nil)
	if err != nil {
		return nil, err
	}
	return child, nil
}

// isComposite reports whether v has attributes or elements of its own.
// Values that marshal to text are terminal.
func isComposite(v any) bool {
	if v == nil {
		return false
	}
	if n, ok := primitive.Normalize(v); ok && primitive.IsScalar(n) {
		return false
	}
	if _, ok := v.(encoding.TextMarshaler); ok {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// NewObjectSerializer returns a serializer for plain Go values whose default
// fields are their public attributes. Nested values get an object serializer
// of their own while depth allows.
//
// With WithClass(reflect.Type) and no factory, reverting builds a pointer to
// a new value of that type.
func NewObjectSerializer(schema *Schema, opts ...Option) (*Serializer, error) {
	return newObjectSerializer(schema, opts)
}

func newObjectSerializer(schema *Schema, opts []Option) (*Serializer, error) {
	s := &Serializer{format: DefaultFormat, provider: ObjectFields{}}
	if err := s.init(schema, opts); err != nil {
		return nil, err
	}
	if typ, ok := s.class.(reflect.Type); ok && s.factory == nil {
		s.factory = structFactory(typ)
	}
	return s, nil
}

// structFactory builds a new value of typ from reverted attributes.
func structFactory(typ reflect.Type) Factory {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return func(_ *Traversal, _ any, attrs map[string]any) (any, error) {
		obj := reflect.New(typ).Interface()
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := attrs[name]
			if value == nil {
				continue
			}
			if err := access.Set(obj, name, value); err != nil {
				return nil, NewConversionError(name, value, PhaseRevert, err.Error())
			}
		}
		return obj, nil
	}
}
