package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures of the report flow.
type Kind string

const (
	KindStartupConfiguration Kind = "startup_configuration"
	KindReferenceLoad        Kind = "reference_load"
	KindConfiguration        Kind = "configuration"
	KindDispatch             Kind = "dispatch"
	KindMalformedResponse    Kind = "malformed_response"
	KindValidation           Kind = "validation"
	KindGate                 Kind = "gate"
	KindInternal             Kind = "internal"
)

// Error is the structured error carried through the flow.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Detail is the text shown to the operator: the message plus the underlying cause.
func (e *Error) Detail() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func StartupConfiguration(message string, cause error) *Error {
	return New(KindStartupConfiguration, message, cause)
}

func ReferenceLoad(message string, cause error) *Error {
	return New(KindReferenceLoad, message, cause)
}

func Configuration(message string, cause error) *Error {
	return New(KindConfiguration, message, cause)
}

func Dispatch(message string, cause error) *Error {
	return New(KindDispatch, message, cause)
}

func MalformedResponse(message string, cause error) *Error {
	return New(KindMalformedResponse, message, cause)
}

func Validation(message string, cause error) *Error {
	return New(KindValidation, message, cause)
}

func Gate(message string) *Error {
	return New(KindGate, message, nil)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// StatusCode maps an error to the HTTP status used by the JSON API.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindGate:
		return http.StatusConflict
	case KindDispatch:
		return http.StatusBadGateway
	case KindMalformedResponse:
		return http.StatusBadGateway
	case KindStartupConfiguration, KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the operator-visible text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}
