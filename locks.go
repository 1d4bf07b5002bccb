package invoicing

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/xraph/invoicing/id"
)

// lockTable serializes reconciliation per account. Every mutation of an
// account's invoice set runs under that account's lock; operations on
// different accounts never contend.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*semaphore.Weighted)}
}

func (t *lockTable) get(accountID id.AccountID) *semaphore.Weighted {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := accountID.String()
	sem, ok := t.locks[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		t.locks[key] = sem
	}
	return sem
}

// acquire takes the account lock, waiting at most timeout.
func (t *lockTable) acquire(ctx context.Context, accountID id.AccountID, timeout time.Duration) (release func(), err error) {
	sem := t.get(accountID)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, ErrLockTimeout
	}
	return func() { sem.Release(1) }, nil
}
