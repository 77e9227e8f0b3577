package errors

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// HTTPStatus converts repo/engine errors into HTTP status codes.
// Keeps the handler layer clean by centralizing error mapping.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var argErr *ArgumentError
	var feedErr *FeedFetchError

	switch {
	case errors.As(err, &argErr):
		return http.StatusBadRequest

	case errors.Is(err, ErrNoIdentity):
		return http.StatusUnauthorized

	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound

	case errors.Is(err, ErrUndoUnavailable):
		return http.StatusConflict

	case errors.Is(err, ErrSessionClosed):
		return http.StatusGone

	case errors.As(err, &feedErr):
		return http.StatusBadGateway

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
