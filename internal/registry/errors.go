package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredField indicates a question or section YAML document
	// omitted a field the schema requires.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrDuplicateQuestionID indicates two question documents declared the
	// same id.
	ErrDuplicateQuestionID = errors.New("duplicate question id")

	// ErrQuestionNotFound indicates a lookup against byId found nothing.
	ErrQuestionNotFound = errors.New("question not found")
)

// LoadError wraps a registry loading failure with the offending file path,
// matching the teacher's pkg/config/errors.go shape. Startup aborts with
// this error's message naming the file (spec §4.3).
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("registry: failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidationError wraps a schema-validation failure for a single question
// or section document.
type ValidationError struct {
	File  string
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("registry: %s: field %q: %v", e.File, e.Field, e.Err)
	}
	return fmt.Sprintf("registry: %s: %v", e.File, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
