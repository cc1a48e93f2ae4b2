package orglock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesPerOrg(t *testing.T) {
	locker := NewLocalLocker()
	org := snowflake.ID(42)

	var mu sync.Mutex
	var inCritical, maxInCritical int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), org)
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical)
}

func TestLocalLockerIndependentOrgs(t *testing.T) {
	locker := NewLocalLocker()

	releaseA, err := locker.Acquire(context.Background(), snowflake.ID(1))
	require.NoError(t, err)
	defer releaseA()

	// A different organization does not contend.
	done := make(chan struct{})
	go func() {
		releaseB, err := locker.Acquire(context.Background(), snowflake.ID(2))
		assert.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire on an independent org blocked")
	}
}

func TestLocalLockerAcquireHonorsContext(t *testing.T) {
	locker := NewLocalLocker()
	org := snowflake.ID(42)

	release, err := locker.Acquire(context.Background(), org)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, org)
	assert.ErrorIs(t, err, ErrNotAcquired)
}
