package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeInvalidRequest       = "invalid_request"
	CodeInvalidConfiguration = "invalid_configuration"
	CodeUnauthorized         = "unauthorized"
	CodeNotFound             = "not_found"
	CodeRateLimited          = "rate_limited"
	CodeProviderError        = "provider_error"
	CodeInternal             = "internal_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) HTTPStatusCode() int { return e.Status }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func InvalidRequest(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidRequest, err)
}

func InvalidConfiguration(err error) *Error {
	return New(http.StatusBadRequest, CodeInvalidConfiguration, err)
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, CodeNotFound, err)
}

func Provider(status int, err error) *Error {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return New(status, CodeProviderError, err)
}

// From extracts an *Error from err, or wraps err as an internal error.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return New(http.StatusInternalServerError, CodeInternal, err)
}
