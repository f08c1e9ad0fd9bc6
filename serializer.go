package serializers

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strconv"

	"github.com/hengadev/serializers/internal/codec"
	"github.com/hengadev/serializers/internal/monitoring"
	"github.com/hengadev/serializers/orm"
	"github.com/hengadev/serializers/primitive"
)

// DefaultFieldProvider discovers the fields of objects a serializer does not
// declare. obj is nil when reverting; class is nil when converting unless the
// serializer has a fixed class. nested reports whether depth still allows
// nested serializers at this level.
type DefaultFieldProvider interface {
	DefaultFields(t *Traversal, s *Serializer, obj any, class any, nested bool) ([]NamedField, error)
	// FieldFor returns the field for one name that was selected with Fields
	// or Include, or nil when the provider does not know the name.
	FieldFor(t *Traversal, s *Serializer, obj any, class any, name string, nested bool) (Field, error)
}

// Serializer converts objects to primitive structures and back through an
// ordered set of fields. A Serializer is itself a Field, so serializers nest.
//
// A Serializer holds no per-call state: once built it may be shared by
// concurrent calls.
type Serializer struct {
	BaseField

	declared  []NamedField
	selection selection

	depth         int
	depthSet      bool
	flatByDefault bool

	provider      DefaultFieldProvider
	factory       Factory
	class         any
	classResolver ClassResolver
	validator     ObjectValidator
	flatFactory   FlatFieldFactory
	keyFunc       KeyFunc
	loader        Loader

	logger  *slog.Logger
	hook    monitoring.ObservabilityHook
	metrics monitoring.MetricsCollector

	format  codec.Format
	codecs  *codec.Registry
	routeTo *Serializer
}

// NewSerializer returns a serializer for the fields of schema. Without
// WithDefaultFields only declared fields are used.
func NewSerializer(schema *Schema, opts ...Option) (*Serializer, error) {
	s := &Serializer{format: codec.Format(DefaultFormat)}
	if err := s.init(schema, opts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Serializer) init(schema *Schema, opts []Option) error {
	if schema != nil {
		if schema.err != nil {
			return schema.err
		}
		s.declared = schema.Fields()
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return err
		}
	}
	for _, nf := range s.declared {
		if nf.Field == any(s) {
			return NewConfigurationError("serializer cannot declare itself as field '%s'", nf.Name)
		}
		if err := nf.Field.fieldBase().bind(nf.Name, s); err != nil {
			return err
		}
	}
	if s.selection.fieldsSet && s.provider == nil {
		for _, name := range s.selection.fields {
			if !slices.ContainsFunc(s.declared, func(nf NamedField) bool { return nf.Name == name }) {
				return NewConfigurationError("fields names '%s', which is not declared", name)
			}
		}
	}
	return nil
}

// Declared returns the declared fields in order.
func (s *Serializer) Declared() []NamedField {
	return slices.Clone(s.declared)
}

// Provider returns the default field provider, or nil.
func (s *Serializer) Provider() DefaultFieldProvider {
	return s.provider
}

// Convert turns obj into a primitive structure. Sequences and collections
// convert element by element.
func (s *Serializer) Convert(ctx context.Context, obj any, opts ...CallOption) (any, error) {
	co, err := buildCallOptions(opts)
	if err != nil {
		return nil, err
	}
	return s.convert(ctx, obj, co)
}

func (s *Serializer) convert(ctx context.Context, obj any, co callOptions) (any, error) {
	t := newTraversal(ctx, s, PhaseConvert, co)
	var out any
	err := t.observe(PhaseConvert.String(), nil, func() error {
		var err error
		out, err = s.convertValue(t, obj, nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Revert turns a primitive structure back into attributes, or into objects
// when the serializer has a factory. Validation failures of every field are
// collected into one *ValidationError.
func (s *Serializer) Revert(ctx context.Context, data any, opts ...CallOption) (any, error) {
	co, err := buildCallOptions(opts)
	if err != nil {
		return nil, err
	}
	return s.revert(ctx, data, co)
}

func (s *Serializer) revert(ctx context.Context, data any, co callOptions) (any, error) {
	t := newTraversal(ctx, s, PhaseRevert, co)
	var out any
	err := t.observe(PhaseRevert.String(), nil, func() error {
		var err error
		out, err = s.revertValue(t, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ToNative converts an already extracted value.
func (s *Serializer) ToNative(t *Traversal, value any) (any, error) {
	return s.convertValue(t, value, nil, s.name)
}

// FromNative reverts a primitive value.
func (s *Serializer) FromNative(t *Traversal, value any) (any, error) {
	return s.revertValue(t, value)
}

// FieldToNative converts the value s is declared for on obj. A nested
// serializer enters one level of depth; with Source(SourceSelf) it converts
// obj itself at the same level.
func (s *Serializer) FieldToNative(t *Traversal, obj any, name string) (any, error) {
	if s.IsPassthrough() {
		return s.convertObject(t, obj)
	}
	value, err := s.extract(obj, name)
	if err != nil {
		return nil, err
	}
	var flat func() Field
	if parent := t.top(); parent != nil && parent.serializer != nil {
		p := parent.serializer
		flat = func() Field { return p.flatField(t, obj, name, s) }
	}
	return t.descend(s, func() (any, error) {
		return s.convertValue(t, value, flat, name)
	})
}

// FieldFromNative reverts the entry s is declared for. With
// Source(SourceSelf) the reverted attributes are merged into the parent's.
func (s *Serializer) FieldFromNative(t *Traversal, data *primitive.Map, name string, into map[string]any) error {
	raw, ok := data.Get(s.key(name))
	if !ok {
		if s.required {
			return errRequired
		}
		return nil
	}

	if s.IsPassthrough() {
		nested, isMap := raw.(*primitive.Map)
		if !isMap {
			return NewConversionError(name, raw, PhaseRevert, "expected a mapping")
		}
		value, err := s.revertObject(t, nested)
		if err != nil {
			return err
		}
		if attrs, isAttrs := value.(map[string]any); isAttrs {
			maps.Copy(into, attrs)
		} else if value != nil {
			into[name] = value
		}
		return nil
	}

	value, err := t.descend(s, func() (any, error) {
		return s.revertValue(t, raw)
	})
	if err != nil {
		return err
	}
	if err := s.validate(value); err != nil {
		return err
	}
	into[s.target(name)] = value
	return nil
}

func (s *Serializer) convertValue(t *Traversal, value any, flat func() Field, name string) (any, error) {
	if value == nil {
		return nil, nil
	}
	if m, ok := value.(*primitive.Map); ok {
		return m, nil
	}
	switch rv := reflect.ValueOf(value); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
	}
	if n, ok := primitive.Normalize(value); ok && primitive.IsScalar(n) {
		return n, nil
	}
	if isSequence(value) {
		leave, ok := t.enterSequence(value)
		if !ok {
			t.flattened(name, "recursion")
			return fmt.Sprintf("<%T>", value), nil
		}
		defer leave()
		items, err := sequenceItems(t, value)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			converted, err := s.convertValue(t, item, flat, name)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().NumIn() == 0 && rv.Type().NumOut() >= 1 {
			return s.convertValue(t, rv.Call(nil)[0].Interface(), flat, name)
		}
	}
	if s.loader != nil {
		loaded, err := s.loader(t, value)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			return nil, nil
		}
		value = loaded
	}
	if flat != nil && t.InChain(value) {
		t.flattened(name, "recursion")
		return flat().ToNative(t, value)
	}
	return s.convertObject(t, value)
}

func sequenceItems(t *Traversal, value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case orm.Collection:
		return v.All(t.Context())
	}
	rv := reflect.ValueOf(value)
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}

func (s *Serializer) convertObject(t *Traversal, obj any) (any, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}
	fields, err := s.resolve(t, obj, s.class)
	if err != nil {
		return nil, err
	}

	t.push(obj, s, s.class)
	defer t.pop()

	out := primitive.NewMap()
	for _, nf := range fields {
		field := nf.Field
		if field.fieldBase().writeOnly {
			continue
		}
		if nested, ok := field.(*Serializer); ok && !nested.IsPassthrough() && t.Exhausted() {
			t.flattened(nf.Name, "depth")
			field = s.flatField(t, obj, nf.Name, nested)
		}
		value, err := fieldToNative(t, field, obj, nf.Name)
		if err != nil {
			return nil, &FieldError{Field: nf.Name, Phase: PhaseConvert, Err: err}
		}
		out.SetWithAttrs(s.fieldKey(obj, nf.Name, field), value, field.Attributes(t))
	}
	return out, nil
}

func (s *Serializer) fieldKey(obj any, name string, field Field) string {
	if s.keyFunc != nil {
		return s.keyFunc(obj, name, field)
	}
	return field.fieldBase().key(name)
}

// flatField returns the terminal field replacing nested. It reads the same
// source under the same label.
func (s *Serializer) flatField(t *Traversal, obj any, name string, nested *Serializer) Field {
	var field Field
	if s.flatFactory != nil {
		field = cloneField(s.flatFactory(t, obj, name, nested))
	}
	if field == nil {
		field = &FlatField{}
	}
	b := field.fieldBase()
	if b.source == "" {
		b.source = nested.source
	}
	if b.label == "" {
		b.label = nested.label
	}
	if b.accessor == nil {
		b.accessor = nested.accessor
	}
	b.name, b.owner = name, s
	return field
}

// cloneField returns a shallow copy of f, so binding it to one access never
// writes to an instance a factory may hand out again.
func cloneField(f Field) Field {
	if f == nil {
		return nil
	}
	rv := reflect.ValueOf(f)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return f
	}
	cp := reflect.New(rv.Elem().Type())
	cp.Elem().Set(rv.Elem())
	if c, ok := cp.Interface().(Field); ok {
		return c
	}
	return f
}

func (s *Serializer) revertValue(t *Traversal, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *primitive.Map:
		return s.revertObject(t, v)
	case []any:
		out := make([]any, len(v))
		verr := newValidationError()
		for i, item := range v {
			reverted, err := s.revertValue(t, item)
			if err != nil {
				if IsConfigurationError(err) {
					return nil, err
				}
				verr.add(strconv.Itoa(i), err)
				continue
			}
			out[i] = reverted
		}
		if !verr.empty() {
			return nil, verr
		}
		return out, nil
	}
	return value, nil
}

func (s *Serializer) revertObject(t *Traversal, data *primitive.Map) (any, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}
	class, err := s.determineClass(t, data)
	if err != nil {
		return nil, err
	}
	fields, err := s.resolve(t, nil, class)
	if err != nil {
		return nil, err
	}

	t.push(nil, s, class)
	defer t.pop()

	attrs := make(map[string]any)
	verr := newValidationError()
	for _, nf := range fields {
		if err := fieldFromNative(t, nf.Field, data, nf.Name, attrs); err != nil {
			if IsConfigurationError(err) {
				return nil, err
			}
			verr.add(nf.Name, err)
		}
	}
	if verr.empty() && s.validator != nil {
		if err := s.validator(attrs); err != nil {
			verr.add(NonFieldErrors, err)
		}
	}
	if !verr.empty() {
		t.Logger().Debug("revert failed validation", slog.Any("fields", verr.Fields()))
		return nil, verr
	}
	if s.factory != nil {
		return s.factory(t, class, attrs)
	}
	return attrs, nil
}

func (s *Serializer) determineClass(t *Traversal, data *primitive.Map) (any, error) {
	if s.classResolver != nil {
		return s.classResolver(t, data)
	}
	if s.class == nil && s.IsPassthrough() {
		if parent := t.top(); parent != nil {
			return parent.class, nil
		}
	}
	return s.class, nil
}

// resolve returns the fields of one call: declared, then discovered, then
// narrowed by the field selection in force.
func (s *Serializer) resolve(t *Traversal, obj any, class any) ([]NamedField, error) {
	sel := t.fieldOptions(s)
	nested := !t.Exhausted()

	fields := slices.Clone(s.declared)
	if s.provider != nil {
		discovered, err := s.provider.DefaultFields(t, s, obj, class, nested)
		if err != nil {
			return nil, err
		}
		for _, nf := range discovered {
			if hasField(fields, nf.Name) {
				continue
			}
			if err := s.adopt(nf); err != nil {
				return nil, err
			}
			fields = append(fields, nf)
		}
	}

	if sel.fieldsSet {
		out := make([]NamedField, 0, len(sel.fields))
		for _, name := range sel.fields {
			if i := slices.IndexFunc(fields, func(nf NamedField) bool { return nf.Name == name }); i >= 0 {
				out = append(out, fields[i])
				continue
			}
			nf, found, err := s.lookup(t, obj, class, name, nested)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, NewConfigurationError("unknown field '%s'", name)
			}
			out = append(out, nf)
		}
		return out, nil
	}

	for _, name := range sel.include {
		if hasField(fields, name) {
			continue
		}
		nf, found, err := s.lookup(t, obj, class, name, nested)
		if err != nil {
			return nil, err
		}
		if !found {
			nf = NamedField{Name: name, Field: NewField()}
			if err := s.adopt(nf); err != nil {
				return nil, err
			}
		}
		fields = append(fields, nf)
	}

	if len(sel.exclude) > 0 {
		fields = slices.DeleteFunc(fields, func(nf NamedField) bool {
			return slices.Contains(sel.exclude, nf.Name)
		})
	}
	return fields, nil
}

// lookup asks the provider for a field that was selected by name.
func (s *Serializer) lookup(t *Traversal, obj, class any, name string, nested bool) (NamedField, bool, error) {
	if s.provider == nil {
		return NamedField{}, false, nil
	}
	field, err := s.provider.FieldFor(t, s, obj, class, name, nested)
	if err != nil || field == nil {
		return NamedField{}, false, err
	}
	nf := NamedField{Name: name, Field: field}
	return nf, true, s.adopt(nf)
}

// adopt binds a discovered field to s. Discovered fields are built for one
// call and never shared.
func (s *Serializer) adopt(nf NamedField) error {
	if nf.Field == nil {
		return NewConfigurationError("provider returned a nil field for '%s'", nf.Name)
	}
	b := nf.Field.fieldBase()
	b.name, b.owner = nf.Name, s
	return nil
}

func hasField(fields []NamedField, name string) bool {
	return slices.ContainsFunc(fields, func(nf NamedField) bool { return nf.Name == name })
}

// FlatField renders a value that is not expanded: scalars stay as they are,
// sequences element by element and anything else as text.
type FlatField struct {
	BaseField
}

func NewFlatField(opts ...FieldOption) *FlatField {
	f := &FlatField{}
	f.apply(opts)
	return f
}

func (f *FlatField) ToNative(t *Traversal, value any) (any, error) {
	if isSequence(value) {
		items, err := sequenceItems(t, value)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = textOf(item)
		}
		return out, nil
	}
	return textOf(value), nil
}
