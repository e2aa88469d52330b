package errors

import (
	"context"
	stderrors "errors"
)

// CheckContext returns an error if the context is canceled or timed out.
// This provides a standardized way to check and wrap context errors.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return Wrap(err, Timeout, operation+" timed out")
		}
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}

// CodeOf extracts the ErrorCode from an error, returning Unknown for
// errors that did not originate in this package.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code()
	}
	return Unknown
}

// IsRecoverable reports whether the error is a generation-service-adjacent
// failure that components absorb locally via their documented neutral
// defaults, rather than propagating up to abort the run.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case Timeout, ServiceUnavailable, GenerationFailed, ParseFailure:
		return true
	default:
		return false
	}
}
