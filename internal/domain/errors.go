package domain

import (
	"errors"
	"fmt"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicateName   = errors.New("name already exists")
	ErrDuplicateUser   = errors.New("user already exists")
)

type Code string

const (
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeNotAcceptable        Code = "NOT_ACCEPTABLE"
	CodeBadRequest           Code = "BAD_REQUEST"
	CodeUnprocessable        Code = "UNPROCESSABLE_ENTITY"
	CodePreconditionRequired Code = "PRECONDITION_REQUIRED"
	CodePreconditionFailed   Code = "PRECONDITION_FAILED"
	CodeInternal             Code = "INTERNAL"
)

// Status is the HTTP status a code surfaces as. The JSON-RPC transport
// reuses it as its error code.
func (c Code) Status() int {
	switch c {
	case CodeUnauthorized:
		return 401
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeNotAcceptable:
		return 406
	case CodeBadRequest:
		return 400
	case CodeUnprocessable:
		return 422
	case CodePreconditionRequired:
		return 428
	case CodePreconditionFailed:
		return 412
	default:
		return 500
	}
}

type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// PublicMessage hides internal causes from callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal error"
}
