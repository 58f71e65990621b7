package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthentication   = fmt.Errorf("authentication failed")
	ErrAuthorization    = fmt.Errorf("not a member of the conversation")
	ErrNotFound         = fmt.Errorf("not found")
	ErrTransientStore   = fmt.Errorf("store unavailable")
	ErrCounterUnderflow = fmt.Errorf("online counter underflow")
	ErrInvalidPayload   = fmt.Errorf("invalid payload")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrSessionClosed    = fmt.Errorf("session closed")
	ErrUnknownDriver    = fmt.Errorf("unknown driver")
	ErrBusUnavailable   = fmt.Errorf("bus unavailable")
)

// StatusCode maps a domain error to the HTTP status returned by the hook endpoints
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransientStore), errors.Is(err, ErrBusUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
