package context

import (
	"context"
	"testing"
	"time"
)

// time kept after the deadline to clean up databases and files.
const cleanupMargin = time.Second

// WithTest derives a context which is done a little before t's deadline.
//
// Without deadline (no -timeout), ctx is returned as it is.
func WithTest(ctx context.Context, t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	if deadline, ok := t.Deadline(); ok {
		return context.WithDeadline(ctx, deadline.Add(-cleanupMargin))
	}
	return context.WithCancel(ctx)
}
