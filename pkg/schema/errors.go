package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeParse      = "PARSE_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeExecution  = "EXECUTION_ERROR"
	ErrCodeGit        = "GIT_ERROR"
	ErrCodeScan       = "SCAN_ERROR"
	ErrCodeGitHub     = "GITHUB_ERROR"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
	ErrCodePathDenied = "PATH_DENIED"
)

// CatalogError is the structured error type for all catalog operations.
type CatalogError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	PluginID string         `json:"plugin_id,omitempty"`
	Cause    error          `json:"-"`
}

func (e *CatalogError) Error() string {
	if e.PluginID != "" {
		return fmt.Sprintf("[%s] plugin %s: %s", e.Code, e.PluginID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CatalogError) Unwrap() error {
	return e.Cause
}

// NewError creates a new CatalogError.
func NewError(code, message string) *CatalogError {
	return &CatalogError{Code: code, Message: message}
}

// NewErrorf creates a new CatalogError with a formatted message.
func NewErrorf(code, format string, args ...any) *CatalogError {
	return &CatalogError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithPlugin attaches a plugin ID to the error.
func (e *CatalogError) WithPlugin(id string) *CatalogError {
	e.PluginID = id
	return e
}

// WithCause attaches an underlying cause.
func (e *CatalogError) WithCause(err error) *CatalogError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *CatalogError) WithDetails(details map[string]any) *CatalogError {
	e.Details = details
	return e
}

// HasCode reports whether err wraps a CatalogError with the given code.
func HasCode(err error, code string) bool {
	var ce *CatalogError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == code
}
