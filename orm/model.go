// Package orm is the host-ORM boundary the serializers depend on: model
// metadata, a label registry, lookup managers, and the reference and record
// types produced when model data is reverted.
package orm

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/hengadev/serializers/internal/access"
)

var (
	ErrNotFound        = errors.New("object not found")
	ErrNoNaturalKey    = errors.New("model has no natural key")
	ErrUnknownModel    = errors.New("unknown model")
	ErrInvalidModel    = errors.New("invalid model")
	ErrMultipleResults = errors.New("lookup matched more than one object")
)

// Kind names a model field's internal type. The names double as the "type"
// attribute written by the fixture XML renderer.
type Kind string

const (
	AutoField       Kind = "AutoField"
	CharField       Kind = "CharField"
	TextField       Kind = "TextField"
	IntegerField    Kind = "IntegerField"
	FloatField      Kind = "FloatField"
	BooleanField    Kind = "BooleanField"
	DateTimeField   Kind = "DateTimeField"
	DateField       Kind = "DateField"
	UUIDField       Kind = "UUIDField"
	ForeignKey      Kind = "ForeignKey"
	OneToOneField   Kind = "OneToOneField"
	ManyToManyField Kind = "ManyToManyField"
	ReverseRelation Kind = "ReverseRelation"
)

// Field describes one attribute of a model.
type Field struct {
	Name string
	// Column is the storage column; defaults to Name, or Name+"_id" for
	// foreign keys.
	Column string
	Kind   Kind
	// Target is the label of the related model for relation kinds.
	Target string
	// Through names an explicit intermediate model for many-to-many fields.
	// Fields with an explicit intermediate model are not serialized.
	Through string
	Null    bool
	// Hidden fields are never discovered as default fields.
	Hidden bool
}

// IsRelation reports whether the field points at another model.
func (f Field) IsRelation() bool {
	switch f.Kind {
	case ForeignKey, OneToOneField, ManyToManyField, ReverseRelation:
		return true
	}
	return false
}

// IsMany reports whether the field holds a collection of related objects.
func (f Field) IsMany() bool {
	return f.Kind == ManyToManyField || f.Kind == ReverseRelation
}

// Rel returns the relation class name written as the "rel" attribute.
func (f Field) Rel() string {
	switch f.Kind {
	case ForeignKey:
		return "ManyToOneRel"
	case OneToOneField:
		return "OneToOneRel"
	case ManyToManyField:
		return "ManyToManyRel"
	case ReverseRelation:
		return "ManyToOneRel"
	}
	return ""
}

// ColumnName returns the storage column for the field.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	if f.Kind == ForeignKey || f.Kind == OneToOneField {
		return f.Name + "_id"
	}
	return f.Name
}

// Model is the metadata for one model type.
type Model struct {
	App  string
	Name string
	// Type is the struct type backing instances. Nil means instances are
	// *Record values.
	Type reflect.Type
	PK   Field
	// Fields are the local concrete fields, foreign keys included, primary
	// key excluded.
	Fields     []Field
	ManyToMany []Field
	// Related are reverse relations from other models.
	Related []Field
	// NaturalKey lists the attributes that identify an instance without its
	// primary key.
	NaturalKey []string
	Manager    Manager
}

// Label returns the "app.model" identifier, lower-cased.
func (m *Model) Label() string {
	return strings.ToLower(m.App + "." + m.Name)
}

func (m *Model) String() string {
	return m.Label()
}

// Validate checks the metadata is usable and fills defaults.
func (m *Model) Validate() error {
	if m.App == "" || m.Name == "" {
		return fmt.Errorf("%w: app and name are required", ErrInvalidModel)
	}
	if m.PK.Name == "" {
		m.PK = Field{Name: "id", Kind: AutoField}
	}
	if m.PK.Kind == "" {
		m.PK.Kind = AutoField
	}
	if m.Type != nil {
		for m.Type.Kind() == reflect.Pointer {
			m.Type = m.Type.Elem()
		}
		if m.Type.Kind() != reflect.Struct {
			return fmt.Errorf("%w: %s is backed by %s, want a struct", ErrInvalidModel, m.Label(), m.Type)
		}
	}
	seen := map[string]bool{m.PK.Name: true}
	for _, group := range [][]Field{m.Fields, m.ManyToMany, m.Related} {
		for _, f := range group {
			if f.Name == "" || f.Kind == "" {
				return fmt.Errorf("%w: %s has a field without a name or kind", ErrInvalidModel, m.Label())
			}
			if seen[f.Name] {
				return fmt.Errorf("%w: %s declares %q twice", ErrInvalidModel, m.Label(), f.Name)
			}
			seen[f.Name] = true
			if f.IsRelation() && f.Target == "" {
				return fmt.Errorf("%w: relation %s.%s has no target", ErrInvalidModel, m.Label(), f.Name)
			}
		}
	}
	for _, name := range m.NaturalKey {
		if !seen[name] {
			return fmt.Errorf("%w: natural key attribute %q is not a field of %s", ErrInvalidModel, name, m.Label())
		}
	}
	return nil
}

// FieldByName finds a field, including the primary key, by attribute name.
func (m *Model) FieldByName(name string) (Field, bool) {
	if name == m.PK.Name || name == "pk" {
		return m.PK, true
	}
	for _, group := range [][]Field{m.Fields, m.ManyToMany, m.Related} {
		for _, f := range group {
			if f.Name == name {
				return f, true
			}
		}
	}
	return Field{}, false
}

// New returns an empty instance: a pointer to a zero Type value, or a
// *Record.
func (m *Model) New() any {
	if m.Type == nil {
		return NewRecord(m)
	}
	return reflect.New(m.Type).Interface()
}

// Owns reports whether obj is an instance of m.
func (m *Model) Owns(obj any) bool {
	switch v := obj.(type) {
	case *Record:
		return v.Model == m
	case Ref:
		return v.Model == m
	case nil:
		return false
	}
	if m.Type == nil {
		return false
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t == m.Type
}

// PKOf returns the primary key value of an instance.
func (m *Model) PKOf(obj any) (any, error) {
	if ref, ok := obj.(Ref); ok {
		return ref.PK, nil
	}
	return access.Get(obj, m.PK.Name)
}

// NaturalKeyer is implemented by instances that compute their own natural
// key.
type NaturalKeyer interface {
	NaturalKey() []any
}

// NaturalKeyOf returns the natural key of obj, from NaturalKeyer or from the
// model's NaturalKey attributes.
func (m *Model) NaturalKeyOf(obj any) ([]any, error) {
	if nk, ok := obj.(NaturalKeyer); ok {
		return nk.NaturalKey(), nil
	}
	if len(m.NaturalKey) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoNaturalKey, m.Label())
	}
	key := make([]any, len(m.NaturalKey))
	for i, name := range m.NaturalKey {
		v, err := access.Get(obj, name)
		if err != nil {
			return nil, fmt.Errorf("natural key of %s: %w", m.Label(), err)
		}
		key[i] = v
	}
	return key, nil
}

// HasNaturalKey reports whether instances of m can be addressed by natural
// key, both to produce one and to look one up.
func (m *Model) HasNaturalKey() bool {
	if m.Manager == nil {
		return false
	}
	if len(m.NaturalKey) > 0 {
		return true
	}
	if m.Type == nil {
		return false
	}
	return reflect.PointerTo(m.Type).Implements(naturalKeyerType) || m.Type.Implements(naturalKeyerType)
}

var naturalKeyerType = reflect.TypeOf((*NaturalKeyer)(nil)).Elem()
