package service

import (
	"errors"
	"fmt"
	"strings"
)

// Catalog error taxonomy. Callers match with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrDependencyFailure    = errors.New("dependency failure")
)

// FieldError describes one rejected input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field constraint a payload broke.
// It matches ErrInvalidInput.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func invalidField(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// OrphanedAssetError reports that bytes were stored but no product
// references them, because the step after the upload failed. Ref is left
// for out-of-band reconciliation.
type OrphanedAssetError struct {
	Ref   string
	Cause error
}

func (e *OrphanedAssetError) Error() string {
	return fmt.Sprintf("asset %s stored but not attached: %v", e.Ref, e.Cause)
}

func (e *OrphanedAssetError) Unwrap() error { return e.Cause }
