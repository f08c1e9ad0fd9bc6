package serializers

import (
	"fmt"

	"github.com/hengadev/serializers/internal/codec"
	"github.com/hengadev/serializers/orm"
	"github.com/hengadev/serializers/primitive"
)

// RelatedField renders a relation to another model without expanding it.
// Many-to-many and reverse relations convert member by member.
type RelatedField struct {
	BaseField
	relation orm.Field
	target   *orm.Model
}

func newRelatedField(relation orm.Field, target *orm.Model, opts []FieldOption) RelatedField {
	f := RelatedField{relation: relation, target: target}
	f.apply(opts)
	return f
}

// Relation returns the model field the relation is declared as.
func (f *RelatedField) Relation() orm.Field { return f.relation }

// Target returns the related model.
func (f *RelatedField) Target() *orm.Model { return f.target }

func (f *RelatedField) Attributes(t *Traversal) map[string]string {
	attrs := f.BaseField.Attributes(t)
	if attrs == nil {
		attrs = make(map[string]string, 2)
	}
	if rel := f.relation.Rel(); rel != "" {
		attrs[codec.AttrRel] = rel
	}
	if f.target != nil {
		attrs[codec.AttrTo] = f.target.Label()
	}
	return attrs
}

// each applies fn to the value, or to every member of a to-many relation.
func (f *RelatedField) each(t *Traversal, value any, fn func(item any) (any, error)) (any, error) {
	if value == nil {
		return nil, nil
	}
	if !f.relation.IsMany() {
		return fn(value)
	}
	if !isSequence(value) {
		return nil, fmt.Errorf("%w: relation '%s' expects a list, got %T", ErrConversion, f.relation.Name, value)
	}
	items, err := sequenceItems(t, value)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, item := range items {
		if out[i], err = fn(item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f *RelatedField) label() string {
	if f.name != "" {
		return f.name
	}
	return f.relation.Name
}

func (f *RelatedField) pkOf(t *Traversal, item any) (any, error) {
	if item == nil {
		return nil, nil
	}
	if n, ok := primitive.Normalize(item); ok && primitive.IsScalar(n) {
		return n, nil
	}
	if f.target == nil {
		return nil, NewConfigurationError("relation '%s' has no target model", f.label())
	}
	pk, err := f.target.PKOf(item)
	if err != nil {
		return nil, fmt.Errorf("%w: primary key of %T: %v", ErrConversion, item, err)
	}
	return toPrimitive(t, pk), nil
}

// ref reverts a primary key into a reference to the target model, coercing
// integer keys.
func (f *RelatedField) ref(item any) (any, error) {
	if item == nil {
		return nil, nil
	}
	if f.target == nil {
		return nil, NewConfigurationError("relation '%s' has no target model", f.label())
	}
	pk := item
	switch f.target.PK.Kind {
	case orm.AutoField, orm.IntegerField:
		n, err := toInt(item)
		if err != nil {
			return nil, err
		}
		pk = n
	}
	return orm.Ref{Model: f.target, PK: pk}, nil
}

func (f *RelatedField) naturalKeyOf(t *Traversal, item any) (any, error) {
	if item == nil {
		return nil, nil
	}
	if f.target == nil {
		return nil, NewConfigurationError("relation '%s' has no target model", f.label())
	}
	if ref, ok := item.(orm.Ref); ok {
		if f.target.Manager == nil {
			return nil, fmt.Errorf("%w: cannot load %v", ErrConversion, ref)
		}
		obj, err := f.target.Manager.Get(t.Context(), f.target, ref.PK)
		if err != nil {
			return nil, fmt.Errorf("%w: load %v: %v", ErrConversion, ref, err)
		}
		item = obj
	}
	key, err := f.target.NaturalKeyOf(item)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	out := make([]any, len(key))
	for i, part := range key {
		out[i] = toPrimitive(t, part)
	}
	return out, nil
}

// lookup resolves a natural key through the target's manager.
func (f *RelatedField) lookup(t *Traversal, item any) (any, error) {
	if item == nil {
		return nil, nil
	}
	if f.target == nil {
		return nil, NewConfigurationError("relation '%s' has no target model", f.label())
	}
	key, ok := item.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: natural key must be a list, got %T", ErrConversion, item)
	}
	if f.target.Manager == nil {
		return nil, NewLookupError(f.label(), f.target.Label(), key, orm.ErrNoNaturalKey)
	}
	obj, err := f.target.Manager.GetByNaturalKey(t.Context(), f.target, key)
	if err != nil {
		return nil, NewLookupError(f.label(), f.target.Label(), key, err)
	}
	pk, err := f.target.PKOf(obj)
	if err != nil {
		return nil, NewLookupError(f.label(), f.target.Label(), key, err)
	}
	return orm.Ref{Model: f.target, PK: pk}, nil
}

// PrimaryKeyRelatedField converts relations to primary keys and reverts
// primary keys to orm.Ref values.
type PrimaryKeyRelatedField struct {
	RelatedField
}

func NewPrimaryKeyRelatedField(relation orm.Field, target *orm.Model, opts ...FieldOption) *PrimaryKeyRelatedField {
	return &PrimaryKeyRelatedField{RelatedField: newRelatedField(relation, target, opts)}
}

func (f *PrimaryKeyRelatedField) ToNative(t *Traversal, value any) (any, error) {
	return f.each(t, value, func(item any) (any, error) { return f.pkOf(t, item) })
}

func (f *PrimaryKeyRelatedField) FromNative(t *Traversal, value any) (any, error) {
	return f.each(t, value, f.ref)
}

// NaturalKeyRelatedField converts relations to natural keys and reverts them
// by looking the key up through the target model's manager. A key with no
// match fails with a *LookupError naming the relation.
type NaturalKeyRelatedField struct {
	RelatedField
}

func NewNaturalKeyRelatedField(relation orm.Field, target *orm.Model, opts ...FieldOption) *NaturalKeyRelatedField {
	return &NaturalKeyRelatedField{RelatedField: newRelatedField(relation, target, opts)}
}

func (f *NaturalKeyRelatedField) Attributes(t *Traversal) map[string]string {
	attrs := f.RelatedField.Attributes(t)
	attrs[codec.AttrNatural] = "true"
	return attrs
}

func (f *NaturalKeyRelatedField) ToNative(t *Traversal, value any) (any, error) {
	return f.each(t, value, func(item any) (any, error) { return f.naturalKeyOf(t, item) })
}

func (f *NaturalKeyRelatedField) FromNative(t *Traversal, value any) (any, error) {
	return f.each(t, value, func(item any) (any, error) { return f.lookup(t, item) })
}

// PrimaryKeyOrNaturalKeyRelatedField uses natural keys when the call asks
// for them with NaturalKeys(true) and the target supports them, and primary
// keys otherwise. Reverting accepts either: lists are natural keys.
type PrimaryKeyOrNaturalKeyRelatedField struct {
	RelatedField
}

func NewPrimaryKeyOrNaturalKeyRelatedField(relation orm.Field, target *orm.Model, opts ...FieldOption) *PrimaryKeyOrNaturalKeyRelatedField {
	return &PrimaryKeyOrNaturalKeyRelatedField{RelatedField: newRelatedField(relation, target, opts)}
}

func (f *PrimaryKeyOrNaturalKeyRelatedField) natural(t *Traversal) bool {
	return t.NaturalKeys() && f.target != nil && f.target.HasNaturalKey()
}

func (f *PrimaryKeyOrNaturalKeyRelatedField) Attributes(t *Traversal) map[string]string {
	attrs := f.RelatedField.Attributes(t)
	if f.natural(t) {
		attrs[codec.AttrNatural] = "true"
	}
	return attrs
}

func (f *PrimaryKeyOrNaturalKeyRelatedField) ToNative(t *Traversal, value any) (any, error) {
	if f.natural(t) {
		return f.each(t, value, func(item any) (any, error) { return f.naturalKeyOf(t, item) })
	}
	return f.each(t, value, func(item any) (any, error) { return f.pkOf(t, item) })
}

func (f *PrimaryKeyOrNaturalKeyRelatedField) FromNative(t *Traversal, value any) (any, error) {
	return f.each(t, value, func(item any) (any, error) {
		if _, isKey := item.([]any); isKey && f.target != nil && f.target.HasNaturalKey() {
			return f.lookup(t, item)
		}
		return f.ref(item)
	})
}

// ModelNameField converts an instance to its model label ("app.model"). It
// reads the whole object and is never reverted.
type ModelNameField struct {
	BaseField
	registry *orm.Registry
}

func NewModelNameField(registry *orm.Registry, opts ...FieldOption) *ModelNameField {
	f := &ModelNameField{registry: registry}
	f.source = SourceSelf
	f.apply(opts)
	f.readOnly = true
	return f
}

func (f *ModelNameField) ToNative(_ *Traversal, value any) (any, error) {
	m, ok := modelOf(f.registry, value)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a registered model instance", ErrConversion, value)
	}
	return m.Label(), nil
}

// modelOf returns the model of an instance.
func modelOf(registry *orm.Registry, obj any) (*orm.Model, bool) {
	switch v := obj.(type) {
	case *orm.Record:
		return v.Model, v.Model != nil
	case orm.Ref:
		return v.Model, v.Model != nil
	case *orm.DeserializedObject:
		return v.Model, v.Model != nil
	}
	if registry == nil {
		return nil, false
	}
	return registry.ModelOf(obj)
}
