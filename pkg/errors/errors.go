// Package errors defines the sentinel errors shared by the index builder,
// the runtime index managers, and the query surfaces, plus an AppError
// wrapper that carries an HTTP status for the service handlers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrSnapshotMissing    = errors.New("snapshot missing")
	ErrSnapshotInvalid    = errors.New("snapshot invalid")
	ErrChapterUnavailable = errors.New("chapter unavailable")
	ErrBuildCancelled     = errors.New("index build cancelled")
	ErrIndexUnavailable   = errors.New("index unavailable")
	ErrInternal           = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
)

// AppError pairs a sentinel with the HTTP status and message a handler
// should answer with.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// IsSnapshotUnusable reports whether err means a snapshot should be treated
// as absent.
func IsSnapshotUnusable(err error) bool {
	return errors.Is(err, ErrSnapshotMissing) || errors.Is(err, ErrSnapshotInvalid)
}

// statusFor maps sentinels to HTTP statuses, first match wins.
var statusFor = []struct {
	err    error
	status int
}{
	{ErrIndexUnavailable, http.StatusServiceUnavailable},
	{ErrBuildCancelled, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusServiceUnavailable},
	{ErrNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
}

// HTTPStatusCode picks the status for err: an AppError's own, else the
// first sentinel it wraps, else 500.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, m := range statusFor {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
