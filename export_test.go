package invoicing

import (
	"context"
	"time"

	"github.com/xraph/invoicing/id"
)

// AcquireAccountLock takes the per-account reconciliation lock, for
// tests that hold it across engine calls.
func (e *Engine) AcquireAccountLock(ctx context.Context, accountID id.AccountID, timeout time.Duration) (func(), error) {
	return e.locks.acquire(ctx, accountID, timeout)
}
