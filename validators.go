package serializers

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/hengadev/serializers/primitive"
)

// MaxLength fails text longer than n runes.
func MaxLength(n int) Validator {
	return func(value any) error {
		s, ok := value.(string)
		if ok && utf8.RuneCountInString(s) > n {
			return fmt.Errorf("%w: ensure this value has at most %d characters (it has %d)", ErrValidation, n, utf8.RuneCountInString(s))
		}
		return nil
	}
}

// MinLength fails text shorter than n runes.
func MinLength(n int) Validator {
	return func(value any) error {
		s, ok := value.(string)
		if ok && utf8.RuneCountInString(s) < n {
			return fmt.Errorf("%w: ensure this value has at least %d characters (it has %d)", ErrValidation, n, utf8.RuneCountInString(s))
		}
		return nil
	}
}

// MaxValue fails numbers greater than limit.
func MaxValue(limit float64) Validator {
	return func(value any) error {
		if x, ok := number(value); ok && x > limit {
			return fmt.Errorf("%w: ensure this value is less than or equal to %v", ErrValidation, limit)
		}
		return nil
	}
}

// MinValue fails numbers lower than limit.
func MinValue(limit float64) Validator {
	return func(value any) error {
		if x, ok := number(value); ok && x < limit {
			return fmt.Errorf("%w: ensure this value is greater than or equal to %v", ErrValidation, limit)
		}
		return nil
	}
}

// Choices fails values that are not one of allowed. Nil is always allowed.
func Choices(allowed ...any) Validator {
	normalized := make([]any, len(allowed))
	for i, a := range allowed {
		normalized[i], _ = primitive.Normalize(a)
	}
	return func(value any) error {
		if value == nil {
			return nil
		}
		n, _ := primitive.Normalize(value)
		if primitive.IsScalar(n) && slices.Contains(normalized, n) {
			return nil
		}
		return fmt.Errorf("%w: value %v is not a valid choice", ErrValidation, value)
	}
}

func number(value any) (float64, bool) {
	n, _ := primitive.Normalize(value)
	switch v := n.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
