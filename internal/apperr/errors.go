// Package apperr defines the error taxonomy shared by the verification and
// dispatch pipeline and maps it onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Kind classifies a failure for HTTP mapping and retry decisions.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindMisconfigured
	KindUnavailable
	KindProcessor
)

const (
	TextBadRequest    = "WEBHOOK_BAD_REQUEST"
	TextUnauthorized  = "WEBHOOK_UNAUTHORIZED"
	TextNotFound      = "TENANT_NOT_FOUND"
	TextMisconfigured = "TENANT_MISCONFIGURED"
	TextUnavailable   = "STORE_UNAVAILABLE"
	TextProcessor     = "PROCESSOR_FAILED"
	TextInternal      = "INTERNAL_ERROR"
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindMisconfigured:
		return "misconfigured"
	case KindUnavailable:
		return "unavailable"
	case KindProcessor:
		return "processor"
	default:
		return "internal"
	}
}

// Error is a classified pipeline error. Cause stays reachable through
// errors.Is / errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ToServiceError converts the error into the go-errors envelope used for
// responses. Only Message is exposed; the cause stays in logs.
func (e *Error) ToServiceError() *goerrors.Error {
	category, code, text := e.Kind.describe()
	return goerrors.New(e.Message, category).
		WithCode(code).
		WithTextCode(text)
}

func (k Kind) describe() (goerrors.Category, int, string) {
	switch k {
	case KindBadRequest:
		return goerrors.CategoryBadInput, http.StatusBadRequest, TextBadRequest
	case KindUnauthorized:
		return goerrors.CategoryAuth, http.StatusUnauthorized, TextUnauthorized
	case KindNotFound:
		return goerrors.CategoryNotFound, http.StatusNotFound, TextNotFound
	case KindMisconfigured:
		return goerrors.CategoryInternal, http.StatusInternalServerError, TextMisconfigured
	case KindUnavailable:
		return goerrors.CategoryExternal, http.StatusServiceUnavailable, TextUnavailable
	case KindProcessor:
		return goerrors.CategoryOperation, http.StatusInternalServerError, TextProcessor
	default:
		return goerrors.CategoryInternal, http.StatusInternalServerError, TextInternal
	}
}

func newError(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// BadRequest reports malformed or incomplete input (missing account id).
func BadRequest(message string, cause error) error {
	return newError(KindBadRequest, message, cause)
}

// Unauthorized reports a missing, invalid or stale signature.
func Unauthorized(message string, cause error) error {
	return newError(KindUnauthorized, message, cause)
}

// NotFound reports an unknown tenant.
func NotFound(message string, cause error) error {
	return newError(KindNotFound, message, cause)
}

// Misconfigured reports a missing or unreadable secret or a malformed reference.
func Misconfigured(message string, cause error) error {
	return newError(KindMisconfigured, message, cause)
}

// Unavailable reports a transient collaborator failure. Callers may retry.
func Unavailable(message string, cause error) error {
	return newError(KindUnavailable, message, cause)
}

// Processor reports an enqueue or dispatch failure.
func Processor(message string, cause error) error {
	return newError(KindProcessor, message, cause)
}

// KindOf returns the classification of err, KindInternal when unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCode maps err to an HTTP status code.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	_, code, _ := KindOf(err).describe()
	return code
}

// Retryable reports whether a sender should retry the request later.
func Retryable(err error) bool {
	return Is(err, KindUnavailable)
}

// Envelope returns the response envelope for err.
func Envelope(err error) *goerrors.Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.ToServiceError()
	}
	return (&Error{Kind: KindInternal, Message: "internal error"}).ToServiceError()
}
