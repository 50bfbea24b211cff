package identity

import (
	"errors"
	"fmt"

	"typingschool/identity/internal/auth"
)

var (
	ErrUnauthenticated = auth.ErrUnauthenticated
	ErrUnauthorized    = auth.ErrUnauthorized
	ErrNotFound        = errors.New("user_not_found")
	ErrEmailTaken      = errors.New("email_taken")
	ErrTooManyAttempts = errors.New("too_many_attempts")
	ErrInternal        = errors.New("server_error")
)

// ValidationError reports malformed caller input. Code is the wire error code.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return e.Code
}

func invalid(code string) error {
	return &ValidationError{Code: code}
}

func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
