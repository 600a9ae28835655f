package party

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartyLocksSerializeAndRelease(t *testing.T) {
	locks := newPartyLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("p1")
			defer unlock()

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.len())
}

func TestRedisLockTimesOut(t *testing.T) {
	e := newTestEnv(t)
	e.svc.lockWait = 50 * time.Millisecond

	ok, err := e.svc.partyRepo.AcquireLock(context.Background(), "p1", "other-instance", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	err = e.svc.withPartyLock(context.Background(), "p1", func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)
}
