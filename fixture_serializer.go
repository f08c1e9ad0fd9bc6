package serializers

import (
	"fmt"

	"github.com/hengadev/serializers/internal/codec"
	"github.com/hengadev/serializers/orm"
	"github.com/hengadev/serializers/primitive"
)

// Keys of a fixture entry.
const (
	FixturePK     = "pk"
	FixtureModel  = "model"
	FixtureFields = "fields"
)

// NewFixtureSerializer returns a serializer for the fixture layout: one
// mapping per instance with the keys "pk", "model" and "fields". Relations
// inside "fields" are written as primary keys, or as natural keys when the
// call passes NaturalKeys(true) and the target model supports them.
//
// Fields, Exclude and Include call options select the attributes inside
// "fields". Reverting resolves each entry's model from its "model" key and
// yields *orm.DeserializedObject values.
func NewFixtureSerializer(registry *orm.Registry, opts ...Option) (*Serializer, error) {
	if registry == nil {
		return nil, NewConfigurationError("fixture serializer needs a model registry")
	}
	provider := &ModelFields{
		Registry: registry,
		Kinds:    ModelLocalFields | ModelManyToMany,
		Hooks: FieldHooks{
			Related: func(_ *orm.Model, f orm.Field, target *orm.Model) (Field, error) {
				return NewPrimaryKeyOrNaturalKeyRelatedField(f, target), nil
			},
		},
	}
	fields := &Serializer{format: DefaultFormat}
	err := fields.init(nil, []Option{
		WithFieldOptions(Source(SourceSelf)),
		WithDefaultFields(provider),
		WithLoader(loadRef),
		WithFlatField(provider.flatField),
	})
	if err != nil {
		return nil, err
	}

	schema := NewSchema().
		Add(FixturePK, &fixturePKField{registry: registry}).
		Add(FixtureModel, NewModelNameField(registry)).
		Add(FixtureFields, fields)

	s := &Serializer{
		format:        DefaultFormat,
		flatByDefault: true,
		codecs:        codec.FixtureRegistry(),
		routeTo:       fields,
	}
	base := []Option{
		WithClassResolver(fixtureModel(registry)),
		WithFactory(buildFixture),
	}
	if err := s.init(schema, append(base, opts...)); err != nil {
		return nil, err
	}
	return s, nil
}

// fixtureModel resolves the model of an entry from its "model" key.
func fixtureModel(registry *orm.Registry) ClassResolver {
	return func(_ *Traversal, data *primitive.Map) (any, error) {
		raw, ok := data.Get(FixtureModel)
		if !ok || raw == nil {
			return nil, NewConversionError(FixtureModel, raw, PhaseRevert, "missing model identifier")
		}
		label, ok := raw.(string)
		if !ok {
			return nil, NewConversionError(FixtureModel, raw, PhaseRevert, "model identifier must be text")
		}
		m, err := registry.Get(label)
		if err != nil {
			return nil, NewLookupError(FixtureModel, label, label, err)
		}
		return m, nil
	}
}

func buildFixture(t *Traversal, class any, attrs map[string]any) (any, error) {
	if pk, ok := attrs[FixturePK]; ok && pk == nil {
		delete(attrs, FixturePK)
	}
	return buildModel(t, class, attrs)
}

// fixturePKField writes the primary key of an instance whatever its
// attribute is called, and coerces reverted keys to the model's key kind.
type fixturePKField struct {
	BaseField
	registry *orm.Registry
}

func (f *fixturePKField) FieldToNative(t *Traversal, obj any, name string) (any, error) {
	m, ok := modelOf(f.registry, obj)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a registered model instance", ErrConversion, obj)
	}
	pk, err := m.PKOf(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: primary key of %s: %v", ErrConversion, m.Label(), err)
	}
	return toPrimitive(t, pk), nil
}

func (f *fixturePKField) FromNative(t *Traversal, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	m, ok := t.Class().(*orm.Model)
	if !ok {
		return value, nil
	}
	return typedField(m.PK.Kind).FromNative(t, value)
}
