package game

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/talgya/tycoon/internal/economy"
	"github.com/talgya/tycoon/internal/persistence"
)

// Code is a stable, caller-facing error class.
type Code string

const (
	CodeValidation           Code = "validation"
	CodeUnauthorized         Code = "unauthorized"
	CodeNotFound             Code = "not_found"
	CodeInsufficientFunds    Code = "insufficient_funds"
	CodeInsufficientResource Code = "insufficient_resource"
	CodeConflict             Code = "conflict"
	CodeInternal             Code = "internal"
)

// HTTPStatus maps the code onto a response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientFunds, CodeInsufficientResource:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Error is returned by every Service operation that fails.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) *Error {
	return newError(CodeValidation, format, args...)
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternal
}

// translate turns a storage error into a caller-facing one. what names the
// thing being acted on, e.g. "parcel p-12".
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: what + " not found", Err: err}
	case errors.Is(err, persistence.ErrInsufficientFunds):
		return &Error{Code: CodeInsufficientFunds, Message: "balance too low", Err: err}
	case errors.Is(err, persistence.ErrInsufficientResource):
		return &Error{Code: CodeInsufficientResource, Message: err.Error(), Err: err}
	case errors.Is(err, economy.ErrCostOverflow), errors.Is(err, persistence.ErrNegativeAmount):
		return &Error{Code: CodeValidation, Message: "order total out of range", Err: err}
	case errors.Is(err, persistence.ErrConflict):
		return &Error{Code: CodeConflict, Message: what + " changed or is unavailable", Err: err}
	}
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}
