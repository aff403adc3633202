package testutils

import (
	"context"
	"fmt"
	"time"
)

// WaitRecv waits for one value from ch until timeout.
// Returns (value, true) if received; otherwise (zero, false).
func WaitRecv[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return WaitRecvCtx(ctx, ch)
}

// WaitRecvCtx waits for one value from ch until ctx is done.
// Returns (value, true) if received; otherwise (zero, false).
func WaitRecvCtx[T any](ctx context.Context, ch <-chan T) (T, bool) {
	select {
	case v, ok := <-ch:
		if !ok {
			var zero T
			return zero, false
		}
		return v, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// CollectN collects exactly n values from ch, waiting up to timeout total.
// Returns the collected slice or an error on timeout/close.
func CollectN[T any](ch <-chan T, n int, timeout time.Duration) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	out := make([]T, 0, n)
	for len(out) < n {
		select {
		case v, ok := <-ch:
			if !ok {
				return out, fmt.Errorf("channel closed after %d/%d values", len(out), n)
			}
			out = append(out, v)
		case <-deadline.C:
			return out, fmt.Errorf("timeout waiting for %d values; got %d", n, len(out))
		}
	}
	return out, nil
}
