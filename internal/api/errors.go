package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the backend. Detail is the message the
// backend sent, empty when it sent none; Message falls back to a generic
// text in that case.
type Error struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *Error) Error() string {
	return e.Message
}

// NetworkError wraps a transport failure: the request never produced a
// response.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func IsUnauthorized(err error) bool { return StatusCode(err) == http.StatusUnauthorized }

func IsForbidden(err error) bool { return StatusCode(err) == http.StatusForbidden }

func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }

func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// errorEnvelope covers both the backend's {"message": ...} shape and the
// framework default {"detail": ...}.
type errorEnvelope struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func newError(status int, body []byte) *Error {
	detail := ""
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		detail = strings.TrimSpace(env.Message)
		if detail == "" {
			detail = strings.TrimSpace(env.Detail)
		}
	}
	msg := detail
	if msg == "" {
		msg = fmt.Sprintf("request failed: %d", status)
	}
	return &Error{StatusCode: status, Message: msg, Detail: detail}
}
