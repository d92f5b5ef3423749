// Package apperr defines the error taxonomy shared by all domain services:
// validation, not-found, conflict and auth failures, each mapping to a fixed
// HTTP status. Services return these; handlers translate them with HTTPError.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	}
	return "unknown"
}

// FieldFailure describes a single invalid field or entry in a rejected batch.
type FieldFailure struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type Error struct {
	Kind     Kind
	Message  string
	Failures []FieldFailure
}

func (e *Error) Error() string {
	if len(e.Failures) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d field failure(s))", e.Message, len(e.Failures))
}

func Validation(msg string, failures ...FieldFailure) *Error {
	return &Error{Kind: KindValidation, Message: msg, Failures: failures}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

// KindOf returns the Kind of err, or 0 if err is not an apperr.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err is an apperr.Error of the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// HTTPError converts a service error into an echo.HTTPError so that handlers
// can return it directly. Unknown errors become 500 without leaking detail.
func HTTPError(err error) *echo.HTTPError {
	var e *Error
	if !errors.As(err, &e) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	body := map[string]interface{}{"error": e.Message, "kind": e.Kind.String()}
	if len(e.Failures) > 0 {
		body["failures"] = e.Failures
	}

	switch e.Kind {
	case KindValidation:
		return echo.NewHTTPError(http.StatusBadRequest, body)
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, body)
	case KindConflict:
		return echo.NewHTTPError(http.StatusConflict, body)
	case KindAuth:
		return echo.NewHTTPError(http.StatusForbidden, body)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
