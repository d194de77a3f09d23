package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AllocationLockKey builds the redis key serialising debt allocations for one
// debtor. Two concurrent deductions for the same debtor must never both read
// the same remaining balances.
func AllocationLockKey(debtorType string, debtorID int64) string {
	return fmt.Sprintf("debts:alloc:%s:%d:lock", debtorType, debtorID)
}

// ErrLockNotAcquired indicates the critical section is held by another worker.
var ErrLockNotAcquired = errors.New("shared: lock not acquired")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Locker provides coarse mutual exclusion backed by redis SET NX.
type Locker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewLocker constructs a Locker with the given lease TTL.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl, retries: 20, backoff: 50 * time.Millisecond}
}

// Acquire takes the named lock, retrying briefly before giving up. The
// returned release func is safe to call exactly once.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("shared: locker not initialised")
	}
	token := uuid.NewString()
	for attempt := 0; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		if attempt >= l.retries {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff):
		}
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
