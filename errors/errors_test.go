// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/visisec/edge-sdk/errors"
)

func TestNormalize(t *testing.T) {
	require.NoError(t, errors.Normalize(nil, "send"))

	err := errors.Normalize(context.Canceled, "send")
	require.True(t, errors.IsKind(err, errors.Cancellation))
	require.Equal(t, "send cancelled", err.Error())

	err = errors.Normalize(context.DeadlineExceeded, "dial")
	require.True(t, errors.IsKind(err, errors.TransportError))

	typed := &errors.Error{Message: "x", Kind: errors.DecodeError}
	require.Same(t, typed, errors.Normalize(typed, "ignored"))
}

func TestContextCause(t *testing.T) {
	cause := &errors.Error{
		Message:      "session start timed out",
		Kind:         errors.SessionTimeoutError,
		TimeoutName:  "AckTimeout",
		TimeoutValue: time.Millisecond,
	}
	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		time.Millisecond,
		cause,
	)
	defer cancel()
	<-ctx.Done()

	require.Same(t, cause, errors.Context(ctx, "session start"))
}

func TestIsKindWrapped(t *testing.T) {
	inner := &errors.Error{Message: "bad frame", Kind: errors.DecodeError}
	outer := &errors.Error{
		Message:     "tick failed",
		Kind:        errors.UnknownError,
		NestedError: fmt.Errorf("wrapped: %w", inner),
	}

	require.True(t, errors.IsKind(outer, errors.DecodeError))
	require.False(t, errors.IsKind(outer, errors.InitError))
	require.False(t, errors.IsKind(fmt.Errorf("plain"), errors.DecodeError))
}

func TestAttrs(t *testing.T) {
	err := &errors.Error{
		Message:       "invalid threshold",
		Kind:          errors.ConfigurationInvalid,
		PropertyName:  "Threshold",
		PropertyValue: 2.0,
	}

	attrs := map[string]string{}
	for _, a := range err.Attrs() {
		attrs[a.Key] = a.Value.String()
	}
	require.Equal(t, "configuration_invalid", attrs["kind"])
	require.Equal(t, "Threshold", attrs["property_name"])
	require.Equal(t, "2", attrs["property_value"])
}
