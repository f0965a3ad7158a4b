package fetch

import (
	"errors"
	"fmt"
)

// Sentinel failure reasons. Every failed [Result] wraps exactly one of
// these; callers classify with [errors.Is].
var (
	// ErrInvalidURL indicates the candidate was not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid URL format")
	// ErrNetwork indicates a transport failure or a non-2xx status.
	ErrNetwork = errors.New("network error")
	// ErrInvalidContentType indicates the declared media type is not an allowed image type.
	ErrInvalidContentType = errors.New("invalid content type")
	// ErrFileTooLarge indicates the declared or actual size exceeded the ceiling.
	ErrFileTooLarge = errors.New("file too large")
	// ErrDuplicate indicates the content hash matched an already stored image.
	ErrDuplicate = errors.New("duplicate image detected")
	// ErrProcessing indicates a local I/O failure while staging, hashing, or promoting.
	ErrProcessing = errors.New("processing error")
)

// Error wraps a sentinel reason with additional detail.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}

	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// failure builds an *Error around one of the sentinel reasons.
func failure(reason error, format string, args ...any) *Error {
	return &Error{Err: reason, Detail: fmt.Sprintf(format, args...)}
}
