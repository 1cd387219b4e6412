// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import "context"

// Concurrent manages sending values to a handler with a configured maximum
// concurrency (where 0 indicates unlimited concurrency). Returns a function to
// send a value to the handler and a cleanup function. With a concurrency of 1,
// values are handled in the order they are sent.
func Concurrent[T any](
	concurrency uint,
	handler func(context.Context, T),
) (func(context.Context, T), func()) {
	type args struct {
		ctx context.Context
		val T
	}

	if concurrency == 0 {
		return func(ctx context.Context, val T) {
			go handler(ctx, val)
		}, func() {}
	}

	dispatch := make(chan args)
	for i := uint(0); i < concurrency; i++ {
		go func() {
			for a := range dispatch {
				handler(a.ctx, a.val)
			}
		}()
	}

	// The context travels with the value so it controls the lifecycle of
	// this handler invocation.
	return func(ctx context.Context, val T) {
		select {
		case dispatch <- args{ctx, val}:
		case <-ctx.Done():
		}
	}, func() { close(dispatch) }
}
