// Package errs provides the error type returned by HTTP handlers. An Error
// carries a code that decides the response status and the source location
// where it was created, which the error middleware logs.
package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

// ErrCode classifies an error for the client.
type ErrCode int

// Set of error codes.
const (
	Unknown ErrCode = iota
	InvalidArgument
	Unauthenticated
	PermissionDenied
	NotFound
	AlreadyExists
	Aborted
	FailedPrecondition
	Upstream
	Unavailable
	Internal

	// InternalOnlyLog is logged with its message but answered as a plain
	// Internal error.
	InternalOnlyLog
)

var codeNames = map[ErrCode]string{
	Unknown:            "unknown",
	InvalidArgument:    "invalid_argument",
	Unauthenticated:    "unauthenticated",
	PermissionDenied:   "permission_denied",
	NotFound:           "not_found",
	AlreadyExists:      "already_exists",
	Aborted:            "aborted",
	FailedPrecondition: "failed_precondition",
	Upstream:           "upstream",
	Unavailable:        "unavailable",
	Internal:           "internal",
	InternalOnlyLog:    "internal",
}

var httpStatus = map[ErrCode]int{
	Unknown:            http.StatusInternalServerError,
	InvalidArgument:    http.StatusBadRequest,
	Unauthenticated:    http.StatusUnauthorized,
	PermissionDenied:   http.StatusForbidden,
	NotFound:           http.StatusNotFound,
	AlreadyExists:      http.StatusConflict,
	Aborted:            http.StatusConflict,
	FailedPrecondition: http.StatusPreconditionFailed,
	Upstream:           http.StatusBadGateway,
	Unavailable:        http.StatusServiceUnavailable,
	Internal:           http.StatusInternalServerError,
	InternalOnlyLog:    http.StatusInternalServerError,
}

func (c ErrCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return codeNames[Unknown]
}

// MarshalText encodes the code by name.
func (c ErrCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Error is an application error that encodes itself as the response body.
type Error struct {
	Code     ErrCode `json:"code"`
	Message  string  `json:"message"`
	Details  any     `json:"details,omitempty"`
	FuncName string  `json:"-"`
	FileName string  `json:"-"`
}

// New wraps err with a code.
func New(code ErrCode, err error) *Error {
	e := &Error{Code: code, Message: err.Error()}
	e.caller(2)
	return e
}

// Newf builds an error from a format string.
func Newf(code ErrCode, format string, v ...any) *Error {
	e := &Error{Code: code, Message: fmt.Sprintf(format, v...)}
	e.caller(2)
	return e
}

func (e *Error) caller(skip int) {
	pc, filename, line, _ := runtime.Caller(skip)
	e.FileName = fmt.Sprintf("%s:%d", filename, line)
	if fn := runtime.FuncForPC(pc); fn != nil {
		e.FuncName = fn.Name()
	}
}

// WithDetails attaches a JSON-encodable payload such as the ids of rows that
// failed to write.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	return e.Message
}

// Encode implements web.Encoder.
func (e *Error) Encode() ([]byte, string, error) {
	data, err := json.Marshal(e)
	return data, "application/json", err
}

// HTTPStatus implements the web package's status hook.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// IsError reports whether err is an *Error.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// GetError returns the *Error inside err, or nil.
func GetError(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	return e
}
