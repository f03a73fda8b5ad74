package sqlrequest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTimeZone = errors.New("sqlrequest: unknown time zone id")
	// ErrNotValidated is returned when a zero Validated is used.
	ErrNotValidated = errors.New("sqlrequest: request was not validated")
)

// ValidationError carries every failure found by Validate. The failure
// strings are client facing and are surfaced verbatim.
type ValidationError struct {
	Failures []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("Validation Failed: ")
	for i, f := range e.Failures {
		fmt.Fprintf(&b, "%d: %s;", i+1, f)
	}
	return b.String()
}

// DecodeError reports the first field that could not be read. Whatever was
// decoded before it is discarded.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("sqlrequest: decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDecode reports whether err is, or wraps, a *DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
