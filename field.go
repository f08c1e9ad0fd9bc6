package serializers

import (
	"encoding"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strings"

	"github.com/hengadev/serializers/internal/access"
	"github.com/hengadev/serializers/orm"
	"github.com/hengadev/serializers/primitive"
)

// Field converts one named value between a Go object and its primitive
// form. Every implementation embeds BaseField.
type Field interface {
	// ToNative converts an already extracted value into a primitive.
	ToNative(t *Traversal, value any) (any, error)
	// FromNative converts a primitive back into a Go value.
	FromNative(t *Traversal, value any) (any, error)
	// Attributes returns format hints written next to the value.
	Attributes(t *Traversal) map[string]string

	fieldBase() *BaseField
}

// FieldConverter is implemented by fields that read their value from the
// parent object themselves instead of through their source.
type FieldConverter interface {
	FieldToNative(t *Traversal, obj any, name string) (any, error)
}

// FieldReverter is implemented by fields that write reverted values into the
// attribute mapping themselves.
type FieldReverter interface {
	FieldFromNative(t *Traversal, data *primitive.Map, name string, into map[string]any) error
}

// Accessor extracts a field's value from the object being converted.
type Accessor func(obj any) (any, error)

// Validator checks a reverted value.
type Validator func(value any) error

// NamedField pairs a field with the name it has in one serializer.
type NamedField struct {
	Name  string
	Field Field
}

// BaseField holds the declaration shared by all fields and implements the
// default conversions: primitives pass through, containers convert element
// by element and anything else becomes text.
type BaseField struct {
	label      string
	source     string
	accessor   Accessor
	readOnly   bool
	writeOnly  bool
	required   bool
	validators []Validator
	attrs      map[string]string

	name  string
	owner *Serializer
}

// FieldOption configures a field at declaration time.
type FieldOption func(*BaseField)

// Label sets the key the field is written under instead of its name.
func Label(label string) FieldOption {
	return func(f *BaseField) { f.label = label }
}

// Source sets the attribute path the field reads. SourceSelf reads the whole
// object; dotted paths traverse nested attributes.
func Source(source string) FieldOption {
	return func(f *BaseField) { f.source = source }
}

// Access sets a function extracting the field's value, overriding Source.
func Access(fn Accessor) FieldOption {
	return func(f *BaseField) { f.accessor = fn }
}

// ReadOnly fields are converted but never reverted.
func ReadOnly() FieldOption {
	return func(f *BaseField) { f.readOnly = true }
}

// WriteOnly fields are reverted but never converted.
func WriteOnly() FieldOption {
	return func(f *BaseField) { f.writeOnly = true }
}

// Required fields fail validation when their key is missing from reverted
// data.
func Required() FieldOption {
	return func(f *BaseField) { f.required = true }
}

// Validators adds validators run on the reverted value.
func Validators(validators ...Validator) FieldOption {
	return func(f *BaseField) { f.validators = append(f.validators, validators...) }
}

// Attrs sets static format hints.
func Attrs(attrs map[string]string) FieldOption {
	return func(f *BaseField) {
		if f.attrs == nil {
			f.attrs = make(map[string]string, len(attrs))
		}
		maps.Copy(f.attrs, attrs)
	}
}

// NewField returns a plain field using the default conversions.
func NewField(opts ...FieldOption) *BaseField {
	f := &BaseField{}
	f.apply(opts)
	return f
}

func (f *BaseField) apply(opts []FieldOption) {
	for _, opt := range opts {
		opt(f)
	}
}

func (f *BaseField) fieldBase() *BaseField { return f }

// Name is the name the owning serializer gave the field, empty until bound.
func (f *BaseField) Name() string { return f.name }

// Owner is the serializer the field is declared in.
func (f *BaseField) Owner() *Serializer { return f.owner }

func (f *BaseField) Label() string       { return f.label }
func (f *BaseField) Source() string      { return f.source }
func (f *BaseField) IsReadOnly() bool    { return f.readOnly }
func (f *BaseField) IsWriteOnly() bool   { return f.writeOnly }
func (f *BaseField) IsRequired() bool    { return f.required }
func (f *BaseField) IsPassthrough() bool { return f.source == SourceSelf }

func (f *BaseField) ToNative(t *Traversal, value any) (any, error) {
	return toPrimitive(t, value), nil
}

func (f *BaseField) FromNative(_ *Traversal, value any) (any, error) {
	return value, nil
}

func (f *BaseField) Attributes(*Traversal) map[string]string {
	if len(f.attrs) == 0 {
		return nil
	}
	return maps.Clone(f.attrs)
}

func (f *BaseField) bind(name string, owner *Serializer) error {
	if f.owner != nil && (f.owner != owner || f.name != name) {
		return NewConfigurationError("field '%s' is already declared as '%s' on another serializer", name, f.name)
	}
	f.name = name
	f.owner = owner
	return nil
}

// key is the data key the field is written under and read from.
func (f *BaseField) key(name string) string {
	if f.label != "" {
		return f.label
	}
	return name
}

// target is the attribute a reverted value is stored under: a simple
// source, else the field name.
func (f *BaseField) target(name string) string {
	if f.accessor == nil && f.source != "" && f.source != SourceSelf && !strings.Contains(f.source, ".") {
		return f.source
	}
	return name
}

func (f *BaseField) extract(obj any, name string) (any, error) {
	if f.accessor != nil {
		return f.accessor(obj)
	}
	src := f.source
	if src == "" {
		src = name
	}
	if src == SourceSelf {
		return obj, nil
	}
	value, err := access.Path(obj, src)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			if isMapLike(obj) {
				return nil, nil
			}
			return nil, NewMissingAttributeError(name, src, obj)
		}
		return nil, err
	}
	return value, nil
}

func (f *BaseField) validate(value any) error {
	for _, v := range f.validators {
		if err := v(value); err != nil {
			if !errors.Is(err, ErrValidation) {
				err = fmt.Errorf("%w: %w", ErrValidation, err)
			}
			return err
		}
	}
	return nil
}

var errRequired = fmt.Errorf("%w: this field is required", ErrValidation)

// fieldToNative reads the field's value from obj and converts it.
func fieldToNative(t *Traversal, f Field, obj any, name string) (any, error) {
	if c, ok := f.(FieldConverter); ok {
		return c.FieldToNative(t, obj, name)
	}
	value, err := f.fieldBase().extract(obj, name)
	if err != nil {
		return nil, err
	}
	return f.ToNative(t, value)
}

// fieldFromNative reverts the field's entry of data into into. Read-only
// fields are a no-op.
func fieldFromNative(t *Traversal, f Field, data *primitive.Map, name string, into map[string]any) error {
	b := f.fieldBase()
	if b.readOnly {
		return nil
	}
	if r, ok := f.(FieldReverter); ok {
		return r.FieldFromNative(t, data, name, into)
	}
	raw, ok := data.Get(b.key(name))
	if !ok {
		if b.required {
			return errRequired
		}
		return nil
	}
	value, err := f.FromNative(t, raw)
	if err != nil {
		return err
	}
	if err := b.validate(value); err != nil {
		return err
	}
	into[b.target(name)] = value
	return nil
}

func isMapLike(obj any) bool {
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Map
}

// toPrimitive converts any Go value into the primitive set. It never fails:
// values with no primitive shape become text, and self-containing maps or
// slices stop at the first repeat.
func toPrimitive(t *Traversal, v any) any {
	return (&converter{t: t, seen: make(map[uintptr]bool)}).convert(v)
}

type converter struct {
	t    *Traversal
	seen map[uintptr]bool
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func (c *converter) convert(v any) any {
	if n, ok := primitive.Normalize(v); ok {
		seq, isSeq := n.([]any)
		if !isSeq {
			return n
		}
		if len(seq) > 0 {
			rv := reflect.ValueOf(seq)
			if c.seen[rv.Pointer()] {
				return fmt.Sprintf("<%T>", v)
			}
			c.seen[rv.Pointer()] = true
			defer delete(c.seen, rv.Pointer())
		}
		return c.sequence(reflect.ValueOf(seq))
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case encoding.TextMarshaler:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		if text, err := val.MarshalText(); err == nil {
			return string(text)
		}
	case orm.Collection:
		items, err := val.All(c.t.Context())
		if err != nil {
			return fmt.Sprintf("<%T: %v>", v, err)
		}
		return c.sequence(reflect.ValueOf(items))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().NumIn() == 0 && rv.Type().NumOut() >= 1 {
			out := rv.Call(nil)
			return c.convert(out[0].Interface())
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		if s, ok := v.(fmt.Stringer); ok {
			return s.String()
		}
		if rv.Kind() == reflect.Pointer {
			if c.seen[rv.Pointer()] {
				return fmt.Sprintf("<%T>", v)
			}
			c.seen[rv.Pointer()] = true
			defer delete(c.seen, rv.Pointer())
		}
		return c.convert(rv.Elem().Interface())
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		if c.seen[rv.Pointer()] {
			return fmt.Sprintf("<%T>", v)
		}
		c.seen[rv.Pointer()] = true
		defer delete(c.seen, rv.Pointer())
		return c.mapping(rv)
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Len() > 0 {
			if c.seen[rv.Pointer()] {
				return fmt.Sprintf("<%T>", v)
			}
			c.seen[rv.Pointer()] = true
			defer delete(c.seen, rv.Pointer())
		}
		return c.sequence(rv)
	case reflect.Array:
		return c.sequence(rv)
	}
	return textOf(v)
}

func (c *converter) sequence(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = c.convert(rv.Index(i).Interface())
	}
	return out
}

func (c *converter) mapping(rv reflect.Value) *primitive.Map {
	type entry struct {
		key   string
		value reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: fmt.Sprint(iter.Key().Interface()), value: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	m := primitive.NewMap()
	for _, e := range entries {
		m.Set(e.key, c.convert(e.value.Interface()))
	}
	return m
}

// textOf renders a value with no primitive shape as text. Scalars stay
// primitive.
func textOf(v any) any {
	if v == nil {
		return nil
	}
	if n, ok := primitive.Normalize(v); ok && primitive.IsScalar(n) {
		return n
	}
	switch val := v.(type) {
	case fmt.Stringer:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		return val.String()
	case error:
		return val.Error()
	case encoding.TextMarshaler:
		if text, err := val.MarshalText(); err == nil {
			return string(text)
		}
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Implements(stringerType) {
			return rv.Interface().(fmt.Stringer).String()
		}
		rv = rv.Elem()
	}
	if printable(rv.Type(), 0) {
		return fmt.Sprint(rv.Interface())
	}
	return fmt.Sprintf("<%s>", rv.Type())
}

// printable reports whether fmt can print values of t without following a
// reference that could lead back to the value itself. Nested pointers are
// printed as addresses.
func printable(t reflect.Type, depth int) bool {
	if depth > 8 {
		return false
	}
	switch t.Kind() {
	case reflect.Interface:
		return false
	case reflect.Map:
		return printable(t.Key(), depth+1) && printable(t.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		return printable(t.Elem(), depth+1)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !printable(t.Field(i).Type, depth+1) {
				return false
			}
		}
	}
	return true
}

// isSequence reports whether v is converted element-wise as a list.
func isSequence(v any) bool {
	switch v.(type) {
	case nil, []byte, string:
		return false
	case orm.Collection, []any:
		return true
	}
	if _, ok := v.(encoding.TextMarshaler); ok {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
}
