package serializers

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hengadev/errsx"
	"github.com/hengadev/serializers/internal/codec"
)

var (
	// Field errors
	ErrConversion       = errors.New("conversion failed")
	ErrValidation       = errors.New("validation failed")
	ErrMissingAttribute = errors.New("missing attribute")

	// Reference errors
	ErrLookup = errors.New("lookup failed")

	// Schema errors
	ErrConfiguration = errors.New("invalid configuration")

	// Codec errors
	ErrUnsupportedFormat = codec.ErrUnsupportedFormat
)

func NewConversionError(fieldName string, value any, phase Phase, details string) error {
	if details != "" {
		return fmt.Errorf("%w: cannot %s field '%s' from %T: %s", ErrConversion, phase, fieldName, value, details)
	}
	return fmt.Errorf("%w: cannot %s field '%s' from %T", ErrConversion, phase, fieldName, value)
}

func NewMissingAttributeError(fieldName string, source string, obj any) error {
	return fmt.Errorf("%w: field '%s' reads '%s', which %T does not have", ErrMissingAttribute, fieldName, source, obj)
}

func NewConfigurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func NewUnsupportedFormatError(format string, phase Phase) error {
	return fmt.Errorf("%w: no codec can %s '%s'", ErrUnsupportedFormat, phase, format)
}

// FieldError wraps an error raised while converting one field, keeping the
// field name and the phase.
type FieldError struct {
	Field string
	Phase Phase
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s field '%s': %v", e.Phase, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ValidationError collects the per-field failures of one revert. Failures of
// a nested serializer are kept as a nested *ValidationError under the
// parent's field name.
type ValidationError struct {
	order  []string
	fields map[string]error
}

// NonFieldErrors is the key object-level validation failures are stored
// under.
const NonFieldErrors = "non_field_errors"

func newValidationError() *ValidationError {
	return &ValidationError{fields: make(map[string]error)}
}

func (e *ValidationError) add(field string, err error) {
	if _, exists := e.fields[field]; !exists {
		e.order = append(e.order, field)
	}
	e.fields[field] = err
}

func (e *ValidationError) empty() bool {
	return len(e.fields) == 0
}

// Fields returns the failing field names in schema order.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Field returns the error recorded for name, or nil.
func (e *ValidationError) Field(name string) error {
	return e.fields[name]
}

// Messages flattens the failures into a map from dotted field path to
// message.
func (e *ValidationError) Messages() map[string]string {
	out := make(map[string]string)
	e.collect("", out)
	return out
}

func (e *ValidationError) collect(prefix string, out map[string]string) {
	for _, name := range e.order {
		err := e.fields[name]
		var nested *ValidationError
		if errors.As(err, &nested) {
			nested.collect(prefix+name+".", out)
			continue
		}
		out[prefix+name] = err.Error()
	}
}

// AsMap returns the failures as an errsx.Map keyed by field name.
func (e *ValidationError) AsMap() errsx.Map {
	var errs errsx.Map
	for _, name := range e.order {
		errs.Set(name, e.fields[name])
	}
	return errs
}

func (e *ValidationError) Error() string {
	msgs := e.Messages()
	keys := make([]string, 0, len(msgs))
	for k := range msgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, msgs[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unwrap exposes the per-field errors so errors.Is and errors.As reach
// lookup and conversion failures recorded for individual fields.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.fields[name])
	}
	return out
}

// LookupError reports a reference that could not be resolved to a live
// instance while reverting.
type LookupError struct {
	Relation string
	Model    string
	Key      any
	Err      error
}

func NewLookupError(relation, model string, key any, err error) *LookupError {
	return &LookupError{Relation: relation, Model: model, Key: key, Err: err}
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("%s: no %s matching %v for relation '%s'", ErrLookup, e.Model, e.Key, e.Relation)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LookupError) Is(target error) bool {
	return target == ErrLookup
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// IsConversionError returns true if a field could not be converted either way.
func IsConversionError(err error) bool {
	return errors.Is(err, ErrConversion) ||
		errors.Is(err, ErrMissingAttribute)
}

// IsValidationError returns true if reverted data failed validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsLookupError returns true if a reference could not be resolved.
func IsLookupError(err error) bool {
	return errors.Is(err, ErrLookup)
}

// IsConfigurationError returns true if the schema or options are unusable.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsFormatError returns true if no codec handles the requested format.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat)
}
