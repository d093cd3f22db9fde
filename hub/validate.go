package hub

import (
	"fmt"
	"math"
	"strings"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string // Field path (e.g., "rows[3].good")
	Code    string // Error code (e.g., "required", "not_finite")
	Message string // Human-readable message
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains all validation errors for a batch of rows.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// HasWarnings returns true if there are warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Error returns a combined error message, or nil if valid.
func (r *ValidationResult) Error() error {
	if r.IsValid() {
		return nil
	}
	var msgs []string
	for i, e := range r.Errors {
		if i == 10 {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(r.Errors)-10))
			break
		}
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// ValidationOptions configures row validation.
type ValidationOptions struct {
	// Required columns must be present and non-empty in every row.
	Required []string
	// NonNegative columns must not be below zero.
	NonNegative []string
}

// conditionColumns are the count columns every room-like entity carries.
var conditionColumns = []string{"good", "moderate_damage", "heavy_damage", "total", "total_room", "lacking_rkb", "male_units", "female_units", "volume"}

// DefaultValidationOptions requires the owner column plus the conflict columns.
func DefaultValidationOptions(conflictKey string) ValidationOptions {
	required := []string{}
	for _, c := range strings.Split(conflictKey, ",") {
		if c = strings.TrimSpace(c); c != "" {
			required = append(required, c)
		}
	}
	return ValidationOptions{
		Required:    required,
		NonNegative: conditionColumns,
	}
}

// ValidateRows checks canonical rows right before they are written.
// Every float must be finite; required columns must be present.
func ValidateRows(rows []map[string]any, opts ValidationOptions) *ValidationResult {
	result := &ValidationResult{}
	nonNegative := make(map[string]bool, len(opts.NonNegative))
	for _, c := range opts.NonNegative {
		nonNegative[c] = true
	}

	for i, row := range rows {
		prefix := fmt.Sprintf("rows[%d]", i)
		for _, col := range opts.Required {
			v, ok := row[col]
			if !ok || v == nil || (isString(v) && strings.TrimSpace(v.(string)) == "") {
				result.Errors = append(result.Errors, ValidationError{
					Field:   prefix + "." + col,
					Code:    "required",
					Message: col + " is required",
				})
			}
		}
		for col, v := range row {
			f, ok := v.(float64)
			if !ok {
				continue
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				result.Errors = append(result.Errors, ValidationError{
					Field:   prefix + "." + col,
					Code:    "not_finite",
					Message: fmt.Sprintf("%s is not a finite number", col),
				})
				continue
			}
			if nonNegative[col] && f < 0 {
				result.Warnings = append(result.Warnings, ValidationError{
					Field:   prefix + "." + col,
					Code:    "negative",
					Message: fmt.Sprintf("%s is negative (%v)", col, f),
				})
			}
		}
	}

	return result
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
