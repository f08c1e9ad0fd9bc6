package serializers

import (
	"fmt"

	"github.com/hengadev/serializers/internal/codec"
	"github.com/hengadev/serializers/orm"
)

// ModelFieldKinds selects the model attributes a ModelFields provider
// discovers.
type ModelFieldKinds uint8

const (
	ModelPrimaryKey ModelFieldKinds = 1 << iota
	ModelLocalFields
	ModelManyToMany
	ModelReverseRelations

	DefaultModelFieldKinds = ModelPrimaryKey | ModelLocalFields | ModelManyToMany
)

// Has reports whether every kind of k2 is selected.
func (k ModelFieldKinds) Has(k2 ModelFieldKinds) bool {
	return k&k2 == k2
}

// FieldHooks build the fields of discovered model attributes. A nil hook
// uses the default.
type FieldHooks struct {
	// Field builds plain attributes. Default: ModelField.
	Field func(model *orm.Model, f orm.Field) (Field, error)
	// Related builds relations that are not expanded. Default:
	// PrimaryKeyRelatedField.
	Related func(model *orm.Model, f orm.Field, target *orm.Model) (Field, error)
	// Nested builds relations expanded while depth allows. Default: a model
	// serializer for the target sharing the parent's provider.
	Nested func(parent *Serializer, model *orm.Model, f orm.Field, target *orm.Model) (Field, error)
}

// ModelFields discovers the fields of model instances from their orm.Model
// metadata. Relations become nested model serializers while depth allows and
// related fields otherwise.
type ModelFields struct {
	Registry *orm.Registry
	// Kinds defaults to DefaultModelFieldKinds.
	Kinds ModelFieldKinds
	Hooks FieldHooks
}

func (p *ModelFields) DefaultFields(t *Traversal, s *Serializer, obj any, class any, nested bool) ([]NamedField, error) {
	m, err := p.model(obj, class)
	if err != nil {
		return nil, err
	}
	kinds := p.Kinds
	if kinds == 0 {
		kinds = DefaultModelFieldKinds
	}

	var candidates []orm.Field
	if kinds.Has(ModelPrimaryKey) {
		candidates = append(candidates, m.PK)
	}
	if kinds.Has(ModelLocalFields) {
		candidates = append(candidates, m.Fields...)
	}
	if kinds.Has(ModelManyToMany) {
		for _, f := range m.ManyToMany {
			// explicit intermediate models are saved on their own
			if f.Through == "" {
				candidates = append(candidates, f)
			}
		}
	}
	if kinds.Has(ModelReverseRelations) {
		candidates = append(candidates, m.Related...)
	}

	fields := make([]NamedField, 0, len(candidates))
	for _, f := range candidates {
		if f.Hidden {
			continue
		}
		field, err := p.fieldFor(s, m, f, nested)
		if err != nil {
			return nil, err
		}
		fields = append(fields, NamedField{Name: f.Name, Field: field})
	}
	return fields, nil
}

func (p *ModelFields) FieldFor(t *Traversal, s *Serializer, obj any, class any, name string, nested bool) (Field, error) {
	m, err := p.model(obj, class)
	if err != nil {
		return nil, err
	}
	f, ok := m.FieldByName(name)
	if !ok {
		return nil, nil
	}
	return p.fieldFor(s, m, f, nested)
}

func (p *ModelFields) model(obj any, class any) (*orm.Model, error) {
	if obj != nil {
		if m, ok := modelOf(p.Registry, obj); ok {
			return m, nil
		}
		return nil, NewConfigurationError("%T is not an instance of a registered model", obj)
	}
	if m, ok := class.(*orm.Model); ok && m != nil {
		return m, nil
	}
	return nil, NewConfigurationError("model fields cannot be discovered without an instance or a model")
}

func (p *ModelFields) fieldFor(s *Serializer, m *orm.Model, f orm.Field, nested bool) (Field, error) {
	if !f.IsRelation() {
		if p.Hooks.Field != nil {
			return p.Hooks.Field(m, f)
		}
		return NewModelField(f), nil
	}
	target, err := p.target(f)
	if err != nil {
		return nil, err
	}
	if nested {
		if p.Hooks.Nested != nil {
			return p.Hooks.Nested(s, m, f, target)
		}
		return p.nestedField(s, target)
	}
	return p.relatedField(m, f, target)
}

func (p *ModelFields) relatedField(m *orm.Model, f orm.Field, target *orm.Model) (Field, error) {
	if p.Hooks.Related != nil {
		return p.Hooks.Related(m, f, target)
	}
	return NewPrimaryKeyRelatedField(f, target), nil
}

func (p *ModelFields) target(f orm.Field) (*orm.Model, error) {
	if p.Registry == nil {
		return nil, NewConfigurationError("relation '%s' needs a model registry", f.Name)
	}
	target, err := p.Registry.Target(f)
	if err != nil {
		return nil, NewConfigurationError("relation '%s': %v", f.Name, err)
	}
	return target, nil
}

func (p *ModelFields) nestedField(parent *Serializer, target *orm.Model) (Field, error) {
	child := &Serializer{format: parent.format, codecs: parent.codecs}
	if err := child.init(nil, p.options(target)); err != nil {
		return nil, err
	}
	return child, nil
}

// options configures a serializer for instances of m.
func (p *ModelFields) options(m *orm.Model) []Option {
	return []Option{
		WithDefaultFields(p),
		WithClass(m),
		WithFactory(buildModel),
		WithLoader(loadRef),
		WithFlatField(p.flatField),
	}
}

// flatField replaces an expanded relation by its related field.
func (p *ModelFields) flatField(_ *Traversal, obj any, name string, _ *Serializer) Field {
	m, ok := modelOf(p.Registry, obj)
	if !ok {
		return nil
	}
	f, ok := m.FieldByName(name)
	if !ok || !f.IsRelation() {
		return nil
	}
	target, err := p.target(f)
	if err != nil {
		return nil
	}
	field, err := p.relatedField(m, f, target)
	if err != nil {
		return nil
	}
	return field
}

// buildModel is the factory of model serializers: attributes become a
// DeserializedObject of the resolved model.
func buildModel(_ *Traversal, class any, attrs map[string]any) (any, error) {
	m, ok := class.(*orm.Model)
	if !ok || m == nil {
		return attrs, nil
	}
	obj, err := m.Build(attrs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	return obj, nil
}

// loadRef resolves references through the manager of their model so that
// nested model serializers convert the instance.
func loadRef(t *Traversal, value any) (any, error) {
	ref, ok := value.(orm.Ref)
	if !ok {
		return value, nil
	}
	if ref.Model == nil {
		return nil, NewLookupError("", "", ref.PK, orm.ErrUnknownModel)
	}
	if ref.Model.Manager == nil {
		return nil, NewLookupError("", ref.Model.Label(), ref.PK, fmt.Errorf("no manager to load %v", ref))
	}
	obj, err := ref.Model.Manager.Get(t.Context(), ref.Model, ref.PK)
	if err != nil {
		return nil, NewLookupError("", ref.Model.Label(), ref.PK, err)
	}
	return obj, nil
}

// NewModelSerializer returns a serializer for instances of model. Relations
// are written as primary keys unless a depth is given with WithDepth or
// Depth, in which case they are expanded into nested mappings up to that
// depth. Reverting yields *orm.DeserializedObject values.
func NewModelSerializer(model *orm.Model, registry *orm.Registry, opts ...Option) (*Serializer, error) {
	return newModelSerializer(nil, model, &ModelFields{Registry: registry}, opts)
}

// NewModelSerializerWith is NewModelSerializer with declared fields and a
// configured provider.
func NewModelSerializerWith(schema *Schema, model *orm.Model, provider *ModelFields, opts ...Option) (*Serializer, error) {
	if provider == nil {
		return nil, NewConfigurationError("model field provider is nil")
	}
	return newModelSerializer(schema, model, provider, opts)
}

func newModelSerializer(schema *Schema, model *orm.Model, provider *ModelFields, opts []Option) (*Serializer, error) {
	if model == nil {
		return nil, NewConfigurationError("model is nil")
	}
	if err := model.Validate(); err != nil {
		return nil, NewConfigurationError("%v", err)
	}
	s := &Serializer{format: DefaultFormat, flatByDefault: true}
	if err := s.init(schema, append(provider.options(model), opts...)); err != nil {
		return nil, err
	}
	return s, nil
}

// ModelField converts a plain model attribute. Reverted values are coerced
// to the attribute's kind, and the kind is reported as the "type" attribute.
type ModelField struct {
	BaseField
	kind  orm.Kind
	typed Field
}

func NewModelField(f orm.Field, opts ...FieldOption) *ModelField {
	m := &ModelField{kind: f.Kind, typed: typedField(f.Kind)}
	m.apply(opts)
	return m
}

func typedField(kind orm.Kind) Field {
	switch kind {
	case orm.AutoField, orm.IntegerField:
		return NewIntegerField()
	case orm.FloatField:
		return NewFloatField()
	case orm.BooleanField:
		return NewBooleanField()
	case orm.DateTimeField:
		return NewDateTimeField()
	case orm.DateField:
		return NewDateField()
	case orm.UUIDField:
		return NewUUIDField()
	case orm.CharField, orm.TextField:
		return NewCharField()
	}
	return NewField()
}

// Kind returns the model kind of the attribute.
func (f *ModelField) Kind() orm.Kind { return f.kind }

func (f *ModelField) ToNative(t *Traversal, value any) (any, error) {
	return f.typed.ToNative(t, value)
}

func (f *ModelField) FromNative(t *Traversal, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return f.typed.FromNative(t, value)
}

func (f *ModelField) Attributes(t *Traversal) map[string]string {
	attrs := f.BaseField.Attributes(t)
	if f.kind == "" {
		return attrs
	}
	if attrs == nil {
		attrs = make(map[string]string, 1)
	}
	attrs[codec.AttrType] = string(f.kind)
	return attrs
}
