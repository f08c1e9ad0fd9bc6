package orm

import (
	"context"
	"fmt"
	"maps"
	"reflect"

	"github.com/hengadev/serializers/internal/access"
)

// Ref is an unresolved reference to a model instance, produced when a
// relation is reverted from its primary key.
type Ref struct {
	Model *Model
	PK    any
}

func (r Ref) String() string {
	if r.Model == nil {
		return fmt.Sprintf("?(%v)", r.PK)
	}
	return fmt.Sprintf("%s(%v)", r.Model.Label(), r.PK)
}

// Record is a schemaless model instance: attribute values keyed by field
// name. Foreign key attributes hold the related instance, a Ref, or nil.
type Record struct {
	Model  *Model
	Values map[string]any
}

// NewRecord returns an empty record of model m.
func NewRecord(m *Model) *Record {
	return &Record{Model: m, Values: make(map[string]any)}
}

func (r *Record) GetAttr(name string) (any, bool) {
	if name == "pk" && r.Model != nil {
		name = r.Model.PK.Name
	}
	v, ok := r.Values[name]
	if !ok && r.Model != nil {
		// declared but unset attributes read as null
		if _, declared := r.Model.FieldByName(name); declared {
			return nil, true
		}
	}
	return v, ok
}

func (r *Record) SetAttr(name string, value any) error {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	r.Values[name] = value
	return nil
}

// AttrNames lists the primary key, local fields and many-to-many fields in
// model order.
func (r *Record) AttrNames() []string {
	if r.Model == nil {
		return access.Names(r.Values)
	}
	names := []string{r.Model.PK.Name}
	for _, f := range r.Model.Fields {
		names = append(names, f.Name)
	}
	for _, f := range r.Model.ManyToMany {
		names = append(names, f.Name)
	}
	return names
}

func (r *Record) String() string {
	if r.Model == nil {
		return fmt.Sprintf("record %v", r.Values)
	}
	return fmt.Sprintf("%s(%v)", r.Model.Label(), r.Values[r.Model.PK.Name])
}

// Collection is a queryset-like source of instances.
type Collection interface {
	All(ctx context.Context) ([]any, error)
}

// QuerySet is a materialised Collection.
type QuerySet struct {
	Model *Model
	Items []any
}

func (q QuerySet) All(context.Context) ([]any, error) {
	return q.Items, nil
}

// DeserializedObject is the result of reverting model data: the instance
// plus the relations that must be resolved or saved separately.
type DeserializedObject struct {
	Model  *Model
	Object any
	// Relations holds reverted foreign keys, usually Ref values.
	Relations map[string]any
	// ManyToMany holds reverted many-to-many members.
	ManyToMany map[string][]any
}

func (d *DeserializedObject) String() string {
	return fmt.Sprintf("<DeserializedObject: %v>", d.Object)
}

// PK returns the primary key of the wrapped object.
func (d *DeserializedObject) PK() any {
	pk, _ := d.Model.PKOf(d.Object)
	return pk
}

// Build creates a DeserializedObject from reverted attributes. Scalar
// attributes are assigned to the new instance; relations are kept apart and,
// for Record instances, also stored on the record.
func (m *Model) Build(attrs map[string]any) (*DeserializedObject, error) {
	obj := m.New()
	d := &DeserializedObject{
		Model:      m,
		Object:     obj,
		Relations:  make(map[string]any),
		ManyToMany: make(map[string][]any),
	}
	for name, value := range attrs {
		f, known := m.FieldByName(name)
		if !known {
			f, known = m.fieldByColumn(name)
		}
		if !known {
			return nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidModel, m.Label(), name)
		}
		switch {
		case f.IsMany():
			items, ok := value.([]any)
			if !ok && value != nil {
				return nil, fmt.Errorf("%w: %s.%s expects a list, got %T", ErrInvalidModel, m.Label(), f.Name, value)
			}
			d.ManyToMany[f.Name] = items
		case f.IsRelation():
			d.Relations[f.Name] = value
			if rec, ok := obj.(*Record); ok {
				rec.Values[f.Name] = value
			}
		default:
			if err := access.Set(obj, f.Name, value); err != nil {
				return nil, fmt.Errorf("build %s: %w", m.Label(), err)
			}
		}
	}
	return d, nil
}

func (m *Model) fieldByColumn(column string) (Field, bool) {
	for _, f := range m.Fields {
		if f.ColumnName() == column {
			return f, true
		}
	}
	return Field{}, false
}

// Instances expands obj into the list of instances it stands for: the items
// of a Collection, the elements of a slice, or obj itself.
func Instances(ctx context.Context, obj any) ([]any, error) {
	switch v := obj.(type) {
	case Collection:
		return v.All(ctx)
	case []any:
		return v, nil
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return []any{obj}, nil
}

// Clone returns a shallow copy of r.
func (r *Record) Clone() *Record {
	return &Record{Model: r.Model, Values: maps.Clone(r.Values)}
}
