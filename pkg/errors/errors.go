// Package errors defines the categorized error type used by the import
// pipeline. Errors carry a category matching the pipeline taxonomy: input
// errors reject the upload, row-level errors become ImportError records,
// and only job-level failures surface to the caller.
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Category groups errors by where in the pipeline they occur.
type Category string

const (
	CategoryInput      Category = "input"
	CategoryParse      Category = "parse"
	CategoryValidation Category = "validation"
	CategoryResolution Category = "resolution"
	CategoryCommit     Category = "commit"
	CategoryStorage    Category = "storage"
	CategoryInternal   Category = "internal"
)

// Code identifies a specific failure within a category.
type Code string

const (
	CodeUnsupportedFormat Code = "unsupported_format"
	CodeEmptyFile         Code = "empty_file"
	CodeRowCapExceeded    Code = "row_cap_exceeded"
	CodeNoHeaderRow       Code = "no_header_row"

	CodeEntityCreateFailed Code = "entity_create_failed"

	CodeJobNotFound       Code = "job_not_found"
	CodeMappingApplied    Code = "mapping_applied"
	CodeRowNotInJob       Code = "row_not_in_job"
	CodeInsertRejected    Code = "insert_rejected"
	CodeJobNotCommittable Code = "job_not_committable"

	CodeUnexpected Code = "unexpected_error"
)

// PipelineError is the base error type for the import pipeline.
type PipelineError struct {
	Category   Category               `json:"category"`
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace pkgerrors.StackTrace   `json:"-"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithContext attaches context information to the error.
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSuggestion attaches a hint for fixing the error.
func (e *PipelineError) WithSuggestion(suggestion string) *PipelineError {
	e.Suggestion = suggestion
	return e
}

// New creates a PipelineError with a captured stack trace.
func New(category Category, code Code, message string) *PipelineError {
	return &PipelineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: stackTrace(pkgerrors.New(message)),
	}
}

// Newf creates a PipelineError with a formatted message.
func Newf(category Category, code Code, format string, args ...interface{}) *PipelineError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error into a PipelineError.
func Wrap(err error, category Category, code Code, message string) *PipelineError {
	if err == nil {
		return nil
	}
	wrapped := pkgerrors.Wrap(err, message)
	return &PipelineError{
		Category:   category,
		Code:       code,
		Message:    fmt.Sprintf("%s: %v", message, err),
		Cause:      err,
		StackTrace: stackTrace(wrapped),
	}
}

// IsCategory reports whether err is a PipelineError of the given category.
func IsCategory(err error, category Category) bool {
	var pe *PipelineError
	if !pkgerrors.As(err, &pe) {
		return false
	}
	return pe.Category == category
}

// IsCode reports whether err is a PipelineError with the given code.
func IsCode(err error, code Code) bool {
	var pe *PipelineError
	if !pkgerrors.As(err, &pe) {
		return false
	}
	return pe.Code == code
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

func stackTrace(err error) pkgerrors.StackTrace {
	if st, ok := err.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}
