package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/edustack/forumchat/internal/authz"
	"github.com/edustack/forumchat/internal/gateway"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// NewServiceUnavailableError marks a transient failure the client may retry;
// batch ingestion and deletion are idempotent, so retrying is safe.
func NewServiceUnavailableError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusServiceUnavailable,
		Message:    lower(http.StatusText(http.StatusServiceUnavailable)),
		Err:        err,
	}
}

// gatewayError maps gateway failures onto the API error taxonomy.
func gatewayError(err error) *ApiError {
	switch {
	case errors.Is(err, gateway.ErrInvalidForum),
		errors.Is(err, gateway.ErrEmptyBatch),
		errors.Is(err, gateway.ErrForumArchived):
		return NewBadRequestError()
	case errors.Is(err, gateway.ErrForumNotFound):
		return NewNotFoundError()
	case errors.Is(err, gateway.ErrStorageUnavailable):
		return NewServiceUnavailableError(err)
	case errors.Is(err, authz.ErrDenied):
		return NewForbiddenError()
	default:
		return NewInternalServerError(err)
	}
}
