package chat

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidChannel     = errors.New("unknown channel")
	ErrMissingDisplayName = errors.New("display name is required")
	ErrEmptyContent       = errors.New("message needs text or an image")
	ErrMessageTooLong     = errors.New("message is too long")

	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError is returned when a request is rejected before any state
// changes. Err is one of the sentinel errors above.
type ValidationError struct {
	Field string
	Err   error
	Limit int
}

func (e *ValidationError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("%v (max %d characters)", e.Err, e.Limit)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err rejected a request without mutating state.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
