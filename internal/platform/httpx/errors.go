// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// NotFoundError returns an error with message msg that matches ErrNotFound.
func NotFoundError(msg string) error { return &kindError{msg: msg, kind: ErrNotFound} }

// ValidationError returns an error with message msg that matches ErrValidation.
func ValidationError(msg string) error { return &kindError{msg: msg, kind: ErrValidation} }

// FieldError is implemented by errors that carry per-field messages.
type FieldError interface {
	error
	Fields() map[string]string
}

// RespondError maps domain errors to HTTP responses using RFC7807. The
// detail is the error message, which callers localise beforehand when needed.
func RespondError(w http.ResponseWriter, err error) {
	var fe FieldError
	switch {
	case errors.As(err, &fe):
		ValidationProblem(w, fe.Error(), fe.Fields())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
