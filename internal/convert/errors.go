package convert

import (
	"errors"
	"fmt"

	"media-optimizer/internal/mediatypes"
)

// ErrUnsupportedFormat means no available backend can encode the
// requested format. Callers skip the format and continue with others.
var ErrUnsupportedFormat = errors.New("no backend supports the requested format")

// EncodeError is a typed conversion failure. Retryable distinguishes
// transient failures (disk full, encoder timeout) from permanent ones
// (corrupt source, unsupported pixel format); only transient failures
// are eligible for re-queueing.
type EncodeError struct {
	Backend   string
	Format    mediatypes.Format
	Retryable bool
	Err       error
}

func (e *EncodeError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("%s %s encode to %s failed: %v", kind, e.Backend, e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// transientError wraps a retryable encode failure.
func transientError(backend string, format mediatypes.Format, err error) *EncodeError {
	return &EncodeError{Backend: backend, Format: format, Retryable: true, Err: err}
}

// permanentError wraps a non-retryable encode failure.
func permanentError(backend string, format mediatypes.Format, err error) *EncodeError {
	return &EncodeError{Backend: backend, Format: format, Retryable: false, Err: err}
}

// IsRetryable reports whether a conversion error may succeed on retry.
func IsRetryable(err error) bool {
	var encodeErr *EncodeError
	if errors.As(err, &encodeErr) {
		return encodeErr.Retryable
	}
	return false
}
