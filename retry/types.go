// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import "context"

type (
	// Task represents a function to retry. It receives the 1-based attempt
	// number and should return a boolean indicating whether a retry should
	// occur on the given error.
	Task = func(ctx context.Context, attempt uint64) (shouldRetry bool, err error)

	// Policy is the retry policy for task execution.
	Policy interface {
		Start(ctx context.Context, name string, task Task) error
	}
)
