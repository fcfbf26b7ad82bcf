package lark

import (
	"fmt"
	"strings"
)

// linkFieldFailure is the marker Bitable puts in msg when a link column value
// cannot be resolved.
const linkFieldFailure = "LinkFieldConvFail"

// AuthError is returned when token issuance or the code exchange reports a
// non-zero code. Msg is the server's message, unchanged.
type AuthError struct {
	Code int
	Msg  string
}

func (e *AuthError) Error() string {
	return "auth error: " + e.Msg
}

// APIError is returned when a Bitable call reports a non-zero code.
type APIError struct {
	Op   string
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Op, e.Msg)
}

// LinkFieldError is an APIError for a broken link column reference.
// errors.As(err, new(*APIError)) also matches it.
type LinkFieldError struct {
	APIError
}

func (e *LinkFieldError) Error() string {
	return "link error: the field value for a link column is invalid; check that the link field name is correct and that the referenced record id exists"
}

func (e *LinkFieldError) As(target any) bool {
	if t, ok := target.(**APIError); ok {
		*t = &e.APIError
		return true
	}
	return false
}

func newAPIError(op string, code int, msg string) error {
	if strings.Contains(msg, linkFieldFailure) {
		return &LinkFieldError{APIError{Op: op, Code: code, Msg: msg}}
	}
	return &APIError{Op: op, Code: code, Msg: msg}
}
