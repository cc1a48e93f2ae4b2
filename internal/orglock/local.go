package orglock

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// LocalLocker serializes within a single process. It is the default for
// single-node deployments; configure redis to coordinate across nodes.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) Acquire(ctx context.Context, orgID snowflake.ID) (func(), error) {
	key := lockKey(orgID)

	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
		return func() {
			<-lock.ch
			l.mu.Lock()
			lock.refs--
			if lock.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		}, nil
	case <-ctx.Done():
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
		return nil, ErrNotAcquired
	}
}
