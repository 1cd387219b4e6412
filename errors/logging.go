// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "log/slog"

// Attrs exposes the structured fields of the error for logging.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 8)

	a = append(a, slog.String("kind", e.Kind.String()))

	if e.Operation != "" {
		a = append(a, slog.String("operation", e.Operation))
	}

	if e.NestedError != nil {
		a = append(a, slog.Any("nested_error", e.NestedError))
	}

	switch e.Kind {
	case SessionTimeoutError:
		a = append(a,
			slog.String("timeout_name", e.TimeoutName),
			slog.Duration("timeout_value", e.TimeoutValue),
		)
	case ConfigurationInvalid, ArgumentInvalid, PayloadInvalid:
		a = append(a, slog.String("property_name", e.PropertyName))
		if e.PropertyValue != nil {
			a = append(a, slog.Any("property_value", e.PropertyValue))
		}
	case StateInvalid, NotConnectedError, NoActiveSessionWarning:
		if e.State != "" {
			a = append(a, slog.String("state", e.State))
		}
	}

	return a
}
