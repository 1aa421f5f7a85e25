// Package apperrors defines the application error taxonomy and the mapping
// from errors to HTTP status codes. Handlers never inspect error strings;
// they pass whatever the service layer returned to StatusCode.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthentication
	KindToken
	KindAuthorization
	KindNotFound
	KindConflict
	KindAIService
	KindAIRateLimit
	KindAIInvalidModel
	KindAIQuotaExceeded
	KindAINetwork
)

// Error is the concrete error type carried across service boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Constructors for each taxonomy entry.

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

func Token(message string, err error) *Error {
	return &Error{Kind: KindToken, Message: message, Err: err}
}

func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func AIService(message string, err error) *Error {
	return &Error{Kind: KindAIService, Message: message, Err: err}
}

func AIRateLimit(message string) *Error {
	return &Error{Kind: KindAIRateLimit, Message: message}
}

func AIInvalidModel(format string, args ...any) *Error {
	return &Error{Kind: KindAIInvalidModel, Message: fmt.Sprintf(format, args...)}
}

func AIQuotaExceeded(message string) *Error {
	return &Error{Kind: KindAIQuotaExceeded, Message: message}
}

func AINetwork(message string, err error) *Error {
	return &Error{Kind: KindAINetwork, Message: message, Err: err}
}

// IsKind reports whether err (or anything it wraps) is an application error
// of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// StatusCode maps an error to the HTTP status the centralized responder
// should emit. Unrecognized errors map to 500.
func StatusCode(err error) int {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindValidation, KindAIInvalidModel:
		return http.StatusBadRequest
	case KindAuthentication, KindToken:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAIQuotaExceeded:
		return http.StatusPaymentRequired
	case KindAIRateLimit:
		return http.StatusTooManyRequests
	case KindAIService, KindAINetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
