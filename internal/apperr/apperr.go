// Package apperr defines the typed error taxonomy shared by the services, the
// registration engine, and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification.
type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
	CodeEventNotFound        Code = "EVENT_NOT_FOUND"
	CodeRegistrationNotFound Code = "REGISTRATION_NOT_FOUND"
	CodeDuplicateUser        Code = "DUPLICATE_USER"
	CodeAlreadyRegistered    Code = "ALREADY_REGISTERED"
	CodeAlreadyOnWaitlist    Code = "ALREADY_ON_WAITLIST"
	CodeEventFull            Code = "EVENT_FULL"
	CodeContention           Code = "CONTENTION"
	CodeInternal             Code = "INTERNAL_ERROR"
	CodeUnavailable          Code = "SERVICE_UNAVAILABLE"
)

// Detail pinpoints a single invalid field.
type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a classified application error. It may wrap a cause, which is kept
// for logging and never serialised to clients.
type Error struct {
	Code    Code
	Message string
	Details []Detail
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that records err as its cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Validation creates a VALIDATION_ERROR carrying per-field details.
func Validation(details ...Detail) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: "validation failed",
		Details: details,
	}
}

// CodeOf extracts the classification of err, or CodeInternal if it carries none.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HasCode reports whether err is classified with the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
