// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Normalize well-known errors into edge SDK errors.
func Normalize(err error, msg string) error {
	if e, ok := err.(*Error); ok {
		return e
	}

	switch {
	case err == nil:
		return nil

	case os.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return &Error{
			Message:     fmt.Sprintf("%s timed out", msg),
			Kind:        TransportError,
			NestedError: err,
		}

	case errors.Is(err, context.Canceled):
		return &Error{
			Message: fmt.Sprintf("%s cancelled", msg),
			Kind:    Cancellation,
		}

	default:
		return &Error{
			Message:     fmt.Sprintf("%s error: %s", msg, err.Error()),
			Kind:        UnknownError,
			NestedError: err,
		}
	}
}

// Context extracts the timeout or cancellation error from a context.
func Context(ctx context.Context, msg string) error {
	// A cause is either an error we've provided (already typed) or one the
	// caller attached to a parent context; both are returned as-is.
	err := ctx.Err()
	if cause := context.Cause(ctx); cause != nil && cause != err {
		return cause
	}
	return Normalize(err, msg)
}

// IsKind reports whether any error in err's chain is an *Error of the given
// kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Kind == kind {
				return true
			}
			err = e.NestedError
			continue
		}
		return false
	}
	return false
}
