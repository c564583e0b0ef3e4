package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error so transports can map it without inspecting
// message text.
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeForbidden          Code = "forbidden"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"

	// Election-domain codes.
	CodeInvalidStateTransition Code = "invalid_state_transition"
	CodeNotEligible            Code = "not_eligible"
	CodeAlreadyVoted           Code = "already_voted"
	CodeInvalidOTP             Code = "invalid_otp"
	CodeExpiredOTP             Code = "expired_otp"
)

// DomainError carries a code alongside the message. It supports errors.Is/As
// through Unwrap when built with Wrap.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// New constructs a DomainError with the given code and message.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf constructs a DomainError with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause chain for errors.Is/As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything in its chain) is a DomainError
// with the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is a readability alias for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// GetCode extracts the code from err, defaulting to CodeInternal for
// unclassified errors.
func GetCode(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP status. Conflict-shaped codes
// (concurrent races, duplicate votes, illegal transitions) are all 409 so
// clients can retry or surface them uniformly.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidOTP, CodeExpiredOTP:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNotEligible:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyVoted, CodeInvalidStateTransition, CodeInvariantViolation:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
