package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/smolchat/internal/inference"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrBusy           = errors.New("a completion is already running")
)

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps an error to its HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, ErrBusy), errors.Is(err, inference.ErrMisuse):
		return http.StatusConflict, "conflict_error"
	case errors.Is(err, inference.ErrContextWindowExceeded):
		return http.StatusRequestEntityTooLarge, "context_window_exceeded"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
