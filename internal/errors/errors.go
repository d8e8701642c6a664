// Package errors defines the domain error taxonomy shared by services and
// handlers. Services return *DomainError values (usually one of the
// sentinels below, optionally wrapped with a cause); the HTTP layer maps the
// Kind to a status code.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a domain error for propagation and status mapping.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindInvalidState        Kind = "invalid_state"
	KindForbidden           Kind = "forbidden"
	KindSecurityRejection   Kind = "security_rejection"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindConflict            Kind = "conflict"
	KindInternal            Kind = "internal"
)

type DomainError struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Err     error
}

func New(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

// Validation builds a field-level validation error.
func Validation(field, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Field:   field,
	}
}

func (e *DomainError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on Code so wrapped copies of a sentinel still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of e carrying err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage returns a copy of e with a more specific client message.
func (e *DomainError) WithMessage(format string, args ...interface{}) *DomainError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// KindOf reports the Kind of err, or KindInternal when err carries no
// DomainError.
func KindOf(err error) Kind {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// As is a shorthand for errors.As against *DomainError.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

var ErrInternal = &DomainError{
	Kind:    KindInternal,
	Code:    "INTERNAL_ERROR",
	Message: "internal server error",
}

var ErrInvalidBody = &DomainError{
	Kind:    KindValidation,
	Code:    "INVALID_REQUEST_BODY",
	Message: "invalid request format",
}
