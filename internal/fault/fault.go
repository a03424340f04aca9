package fault

import (
	"errors"
	"fmt"
)

// Class categorizes why a command was rejected
type Class int32

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassAuthorization
	ClassState
	ClassEligibility
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuthorization:
		return "authorization"
	case ClassState:
		return "state"
	case ClassEligibility:
		return "eligibility"
	default:
		return "unknown"
	}
}

// Error is a classified command rejection. Every rejection is detected before
// any state mutation, so returning one of these means nothing changed.
type Error struct {
	Class Class
	Op    string // command that was rejected, e.g. "OrderConfirm"
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s rejected (%s): %s", e.Op, e.Class, e.Msg)
}

// Validationf builds a validation-class rejection
func Validationf(op, format string, args ...any) *Error {
	return &Error{Class: ClassValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Authorizationf builds an authorization-class rejection
func Authorizationf(op, format string, args ...any) *Error {
	return &Error{Class: ClassAuthorization, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Statef builds a state-class rejection
func Statef(op, format string, args ...any) *Error {
	return &Error{Class: ClassState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Eligibilityf builds an eligibility-class rejection
func Eligibilityf(op, format string, args ...any) *Error {
	return &Error{Class: ClassEligibility, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ClassOf extracts the rejection class from an error chain.
// Returns ClassUnknown for infrastructure errors.
func ClassOf(err error) Class {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ClassUnknown
}

// IsRejection reports whether err is a classified command rejection
// rather than an infrastructure failure.
func IsRejection(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}
