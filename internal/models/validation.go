package models

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is one rejected input field.
type ValidationError struct {
	Field string `json:"field"`
	Cause error  `json:"-"`
}

func (v ValidationError) Error() string {
	if v.Field == "" {
		return v.Cause.Error()
	}
	return fmt.Sprintf("%s: %v", v.Field, v.Cause)
}

// ValidationErrors collects every rejected field of one request so callers
// see all problems at once.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Add records cause against field. A nil cause is ignored.
func (v *ValidationErrors) Add(field string, cause error) {
	if cause == nil {
		return
	}
	v.Errors = append(v.Errors, ValidationError{Field: field, Cause: cause})
}

// Check records cause against field unless ok.
func (v *ValidationErrors) Check(ok bool, field string, cause error) {
	if !ok {
		v.Add(field, cause)
	}
}

// RequireID records cause when the id is blank.
func (v *ValidationErrors) RequireID(field, id string, cause error) {
	v.Check(strings.TrimSpace(id) != "", field, cause)
}

// RequireText records cause when text is empty after trimming.
func (v *ValidationErrors) RequireText(field, text string, cause error) {
	v.Check(strings.TrimSpace(text) != "", field, cause)
}

// RequireDistinct records cause when two present ids name the same user.
// Ids compare exactly as stored. Blank ids are left to RequireID.
func (v *ValidationErrors) RequireDistinct(field, a, b string, cause error) {
	blank := strings.TrimSpace(a) == "" || strings.TrimSpace(b) == ""
	v.Check(blank || a != b, field, cause)
}

// Err returns nil when nothing was rejected.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.Errors) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// Is matches ErrValidation and any recorded cause.
func (v *ValidationErrors) Is(target error) bool {
	if v == nil || len(v.Errors) == 0 {
		return false
	}
	if target == ErrValidation {
		return true
	}
	for _, err := range v.Errors {
		if errors.Is(err.Cause, target) {
			return true
		}
	}
	return false
}
