package validation

import (
	"errors"
	"fmt"
	"math"
	"unicode"
)

// ErrValidationFailed is the base error for rejected field values.
var ErrValidationFailed = errors.New("validation failed")

// ValidateStringNotEmpty checks that a required field has content.
func ValidateStringNotEmpty(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength caps a free-text field.
func ValidateStringMaxLength(value string, maxLength int, fieldName string) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateAmount rejects NaN and infinite amounts. Signed values are
// fine; refunds are negative expenses.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", ErrValidationFailed)
	}
	return nil
}

// ValidateCurrencyCode accepts an empty code (backend default applies)
// or a three-letter alphabetic code.
func ValidateCurrencyCode(code string) error {
	if code == "" {
		return nil
	}
	if len(code) != 3 {
		return fmt.Errorf("%w: currency code must be 3 letters", ErrValidationFailed)
	}
	for _, r := range code {
		if !unicode.IsLetter(r) {
			return fmt.Errorf("%w: currency code must be 3 letters", ErrValidationFailed)
		}
	}
	return nil
}
