// Package errors defines the coded errors shared by the catalog client, the
// update pipeline and the CLI, so callers can branch on a failure class
// without matching message text.
package errors

import "errors"

// Code identifies a structured error type used across the application.
type Code string

const (
	CodeUnknown Code = "unknown"

	// Remote failures
	CodeNetwork Code = "network"
	CodeParse   Code = "parse"

	// Update pipeline failures
	CodeChecksum    Code = "checksum"
	CodeIO          Code = "io"
	CodeBusy        Code = "busy"
	CodeNotEligible Code = "not_eligible"
	CodeNotFound    Code = "not_found"

	CodeConfigurationError Code = "configuration_error"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Transient reports whether retrying the same operation later may succeed.
// Only network failures qualify; a checksum mismatch repeats until the
// catalog or the mirror changes.
func Transient(err error) bool {
	return err != nil && CodeOf(err) == CodeNetwork
}
