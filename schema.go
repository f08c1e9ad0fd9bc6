package serializers

import "slices"

// Schema is the ordered list of fields a serializer declares. Build it with
// NewSchema and Add; the declaration order is the output key order.
type Schema struct {
	fields []NamedField
	err    error
}

// NewSchema returns an empty schema.
func NewSchema() *Schema {
	return &Schema{}
}

// Add appends a field under name. Adding a name twice or a nil field makes
// NewSerializer fail with a ConfigurationError.
func (s *Schema) Add(name string, field Field) *Schema {
	if s.err != nil {
		return s
	}
	switch {
	case name == "":
		s.err = NewConfigurationError("field name cannot be empty")
	case field == nil:
		s.err = NewConfigurationError("field '%s' is nil", name)
	case s.Has(name):
		s.err = NewConfigurationError("field '%s' is declared twice", name)
	default:
		s.fields = append(s.fields, NamedField{Name: name, Field: field})
	}
	return s
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	return slices.ContainsFunc(s.fields, func(nf NamedField) bool { return nf.Name == name })
}

// Fields returns the declared fields in order.
func (s *Schema) Fields() []NamedField {
	return slices.Clone(s.fields)
}

// Len returns the number of declared fields.
func (s *Schema) Len() int {
	return len(s.fields)
}
