package types

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("an account with this email already exists")
	ErrForbidden       = errors.New("action forbidden")

	ErrTokenInvalid = errors.New("password reset token is invalid")
	ErrTokenExpired = errors.New("password reset token has expired")
	ErrTokenUsed    = errors.New("password reset token has already been used")

	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError describes rejected input. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Fields map[string]string
	Msg    string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Msg: msg}
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IsTokenError reports whether err is one of the reset token errors.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenUsed)
}
