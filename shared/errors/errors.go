package errors

import (
	"errors"
	"net/http"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

var (
	ErrUnauthorized = &ErrorWithStatusCode{Message: "Please sign-in", StatusCode: http.StatusUnauthorized}
	ErrForbidden    = &ErrorWithStatusCode{Message: "Not a member of this board", StatusCode: http.StatusForbidden}
	ErrNotFound     = &ErrorWithStatusCode{Message: "Not found", StatusCode: http.StatusNotFound}
	ErrRateLimited  = &ErrorWithStatusCode{Message: "Too many requests", StatusCode: http.StatusTooManyRequests}
)

func BadRequest(message string) error {
	return &ErrorWithStatusCode{Message: message, StatusCode: http.StatusBadRequest}
}

func NotFound(message string) error {
	return &ErrorWithStatusCode{Message: message, StatusCode: http.StatusNotFound}
}

func Forbidden(message string) error {
	return &ErrorWithStatusCode{Message: message, StatusCode: http.StatusForbidden}
}

// StatusCode returns the HTTP status carried by err, 500 if none.
func StatusCode(err error) int {
	var e *ErrorWithStatusCode
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Code maps err to the code sent in realtime "error" events.
func Code(err error) string {
	switch StatusCode(err) {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "internal"
	}
}
