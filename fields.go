package serializers

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/serializers/primitive"
)

// CharField reverts any scalar to its text form.
type CharField struct {
	BaseField
}

func NewCharField(opts ...FieldOption) *CharField {
	f := &CharField{}
	f.apply(opts)
	return f
}

func (f *CharField) FromNative(_ *Traversal, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	}
	if !primitive.IsScalar(value) {
		return nil, fmt.Errorf("%w: expected text, got %T", ErrConversion, value)
	}
	return primitive.Text(value), nil
}

// IntegerField reverts numbers and numeric text to int64. Empty values
// revert to nil.
type IntegerField struct {
	BaseField
}

func NewIntegerField(opts ...FieldOption) *IntegerField {
	f := &IntegerField{}
	f.apply(opts)
	return f
}

func (f *IntegerField) FromNative(_ *Traversal, value any) (any, error) {
	return toInt(value)
}

func toInt(value any) (any, error) {
	n, _ := primitive.Normalize(value)
	switch v := n.(type) {
	case nil:
		return nil, nil
	case int64:
		return v, nil
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return int64(v), nil
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	return nil, fmt.Errorf("%w: '%v' value must be an integer", ErrConversion, value)
}

// FloatField reverts numbers and numeric text to float64.
type FloatField struct {
	BaseField
}

func NewFloatField(opts ...FieldOption) *FloatField {
	f := &FloatField{}
	f.apply(opts)
	return f
}

func (f *FloatField) FromNative(_ *Traversal, value any) (any, error) {
	n, _ := primitive.Normalize(value)
	switch v := n.(type) {
	case nil:
		return nil, nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		if x, err := strconv.ParseFloat(s, 64); err == nil {
			return x, nil
		}
	}
	return nil, fmt.Errorf("%w: '%v' value must be a float", ErrConversion, value)
}

// BooleanField reverts booleans, 0/1 and the texts t, True, 1, f, False, 0.
type BooleanField struct {
	BaseField
}

func NewBooleanField(opts ...FieldOption) *BooleanField {
	f := &BooleanField{}
	f.apply(opts)
	return f
}

func (f *BooleanField) FromNative(_ *Traversal, value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case string:
		switch v {
		case "t", "True", "true", "1":
			return true, nil
		case "f", "False", "false", "0":
			return false, nil
		}
	}
	return nil, fmt.Errorf("%w: '%v' value must be either true or false", ErrConversion, value)
}

// DateTimeField writes times as ISO-8601 text and reverts ISO-8601 text,
// "YYYY-MM-DD HH:MM[:ss[.uuuuuu]]" and plain dates.
type DateTimeField struct {
	BaseField
	location *time.Location
}

// NewDateTimeField returns a DateTimeField reading zone-less text as UTC.
func NewDateTimeField(opts ...FieldOption) *DateTimeField {
	f := &DateTimeField{location: time.UTC}
	f.apply(opts)
	return f
}

// In sets the location zone-less text is read in.
func (f *DateTimeField) In(loc *time.Location) *DateTimeField {
	f.location = loc
	return f
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

func (f *DateTimeField) ToNative(t *Traversal, value any) (any, error) {
	n, ok := primitive.Normalize(value)
	if !ok {
		return f.BaseField.ToNative(t, value)
	}
	if ts, isTime := n.(time.Time); isTime {
		return primitive.FormatTime(ts), nil
	}
	return n, nil
}

func (f *DateTimeField) FromNative(_ *Traversal, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, nil
		}
		for _, layout := range dateTimeLayouts {
			if ts, err := time.ParseInLocation(layout, s, f.location); err == nil {
				return ts, nil
			}
		}
		if d, err := time.ParseInLocation(time.DateOnly, s, f.location); err == nil {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: '%v' value has an invalid format, it must be in YYYY-MM-DD HH:MM[:ss[.uuuuuu]][TZ] format", ErrConversion, value)
}

// DateField writes and reverts YYYY-MM-DD dates. Reverted datetimes lose
// their time of day.
type DateField struct {
	BaseField
}

func NewDateField(opts ...FieldOption) *DateField {
	f := &DateField{}
	f.apply(opts)
	return f
}

func (f *DateField) ToNative(t *Traversal, value any) (any, error) {
	n, ok := primitive.Normalize(value)
	if !ok {
		return f.BaseField.ToNative(t, value)
	}
	if ts, isTime := n.(time.Time); isTime {
		return ts.Format(time.DateOnly), nil
	}
	return n, nil
}

func (f *DateField) FromNative(_ *Traversal, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		y, m, d := v.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, v.Location()), nil
	case string:
		s := strings.TrimSpace(v)
		if d, err := time.Parse(time.DateOnly, s); err == nil {
			return d, nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, ts.Location()), nil
		}
	}
	return nil, fmt.Errorf("%w: '%v' value has an invalid date format, it must be in YYYY-MM-DD format", ErrConversion, value)
}

// UUIDField writes UUIDs in their canonical text form and reverts text to
// uuid.UUID.
type UUIDField struct {
	BaseField
}

func NewUUIDField(opts ...FieldOption) *UUIDField {
	f := &UUIDField{}
	f.apply(opts)
	return f
}

func (f *UUIDField) ToNative(t *Traversal, value any) (any, error) {
	switch v := value.(type) {
	case uuid.UUID:
		return v.String(), nil
	case *uuid.UUID:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	case [16]byte:
		return uuid.UUID(v).String(), nil
	}
	return f.BaseField.ToNative(t, value)
}

func (f *UUIDField) FromNative(_ *Traversal, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("%w: '%s' is not a valid UUID: %v", ErrConversion, v, err)
		}
		return id, nil
	}
	return nil, fmt.Errorf("%w: '%v' is not a valid UUID", ErrConversion, value)
}

// PasswordField is write-only: it never appears in converted output, and
// reverted input is stored as an Argon2id hash.
type PasswordField struct {
	BaseField
	params *Argon2Params
}

// NewPasswordField returns a PasswordField hashing with params, or the
// defaults when params is nil.
func NewPasswordField(params *Argon2Params, opts ...FieldOption) (*PasswordField, error) {
	if params == nil {
		params = DefaultArgon2Params()
	}
	if err := params.Validate(); err != nil {
		return nil, NewConfigurationError("argon2 parameters: %v", err)
	}
	f := &PasswordField{params: params}
	f.apply(opts)
	f.writeOnly = true
	return f, nil
}

func (f *PasswordField) FromNative(_ *Traversal, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, fmt.Errorf("%w: password cannot be empty", ErrValidation)
		}
		hash, err := hashPassword(v, f.params)
		if err != nil {
			return nil, fmt.Errorf("%w: hash password: %v", ErrConversion, err)
		}
		return hash, nil
	}
	return nil, fmt.Errorf("%w: password must be text, got %T", ErrConversion, value)
}
