// Package errors provides structured error types for the url virtual table.
// All errors include a category, code, message, and retryable flag so the
// host binding can map failures consistently.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryReader   ErrorCategory = "READER"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryQuery    ErrorCategory = "QUERY"
	ErrCategoryFetch    ErrorCategory = "FETCH"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes.
const (
	// Reader codes
	CodeIOFailure      = "IO_FAILURE"
	CodeMalformedInput = "MALFORMED_INPUT"
	CodeInvalidFormat  = "INVALID_FORMAT"
	CodeUnknownFormat  = "UNKNOWN_FORMAT"

	// Storage codes
	CodeUnknownStorageMode = "UNKNOWN_STORAGE_MODE"
	CodePersistFailed      = "PERSIST_FAILED"
	CodeLoadFailed         = "LOAD_FAILED"
	CodeCorruptMetadata    = "CORRUPT_METADATA"
	CodeSourceMismatch     = "SOURCE_MISMATCH"

	// Query codes
	CodeMalformedIndex = "MALFORMED_INDEX"
	CodeBadArgument    = "BAD_ARGUMENT"

	// Fetch codes
	CodeFetchFailed       = "FETCH_FAILED"
	CodeUnsupportedScheme = "UNSUPPORTED_SCHEME"

	// Config codes
	CodeMissingArgument = "MISSING_ARGUMENT"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Error is the structured error type used throughout the module.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new Error.
func New(category ErrorCategory, code, message string) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// isRetryable marks the failures an external collaborator may retry.
// Nothing in the reader or pushdown path is ever retried.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryFetch && code == CodeFetchFailed:
		return true
	case category == ErrCategoryStorage && code == CodePersistFailed:
		return true
	case category == ErrCategoryStorage && code == CodeLoadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewIOFailure(message string, cause error) *Error {
	return Wrap(ErrCategoryReader, CodeIOFailure, message, cause)
}

func NewMalformedInput(message string, cause error) *Error {
	return Wrap(ErrCategoryReader, CodeMalformedInput, message, cause)
}

func NewInvalidFormat(message string) *Error {
	return New(ErrCategoryReader, CodeInvalidFormat, message)
}

func NewUnknownFormat(name string) *Error {
	return New(ErrCategoryReader, CodeUnknownFormat, fmt.Sprintf("unknown data format: %s", name))
}

func NewUnknownStorageMode(name string) *Error {
	return New(ErrCategoryStorage, CodeUnknownStorageMode, fmt.Sprintf("not a valid storage option: %s", name))
}

func NewStorageError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewQueryError(code, message string) *Error {
	return New(ErrCategoryQuery, code, message)
}

func NewFetchError(code, message string, cause error) *Error {
	return Wrap(ErrCategoryFetch, code, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Sentinels for errors.Is checks. Matching uses category and code only.
var (
	ErrIOFailure          = New(ErrCategoryReader, CodeIOFailure, "")
	ErrMalformedInput     = New(ErrCategoryReader, CodeMalformedInput, "")
	ErrInvalidFormat      = New(ErrCategoryReader, CodeInvalidFormat, "")
	ErrUnknownFormat      = New(ErrCategoryReader, CodeUnknownFormat, "")
	ErrUnknownStorageMode = New(ErrCategoryStorage, CodeUnknownStorageMode, "")
)
