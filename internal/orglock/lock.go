// Package orglock serializes guarded membership mutations per
// organization, so two concurrent demotions cannot both observe a manager
// count above one and jointly leave the organization unmanaged.
package orglock

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	acquireRetryInterval = 50 * time.Millisecond
	defaultLockTTL       = 10 * time.Second
)

var ErrNotAcquired = errors.New("org_lock_not_acquired")

// Locker grants exclusive per-organization critical sections. Acquire
// blocks until the lock is held or ctx expires; the returned release
// function must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, orgID snowflake.ID) (release func(), err error)
}

func lockKey(orgID snowflake.ID) string {
	return "orglock:" + orgID.String()
}
