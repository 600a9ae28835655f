package party

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const lockRetryInterval = 20 * time.Millisecond

type partyLock struct {
	mu   sync.Mutex
	refs int
}

// partyLocks serializes mutations of one party inside this instance. Entries
// are reference counted and dropped once nobody waits on them.
type partyLocks struct {
	mu    sync.Mutex
	locks map[string]*partyLock
}

func newPartyLocks() *partyLocks {
	return &partyLocks{locks: make(map[string]*partyLock)}
}

func (l *partyLocks) lock(partyId string) func() {
	l.mu.Lock()
	pl, ok := l.locks[partyId]
	if !ok {
		pl = &partyLock{}
		l.locks[partyId] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, partyId)
		}
		l.mu.Unlock()
	}
}

func (l *partyLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}

// withPartyLock runs fn while holding the in-process lock and the redis lock
// of the party.
func (s service) withPartyLock(ctx context.Context, partyId string, fn func() error) error {
	unlock := s.locks.lock(partyId)
	defer unlock()

	token := uuid.NewString()
	if err := s.acquireRedisLock(ctx, partyId, token); err != nil {
		return err
	}
	defer func() {
		if err := s.partyRepo.ReleaseLock(context.WithoutCancel(ctx), partyId, token); err != nil {
			s.logger.WarnContext(ctx, "failed to release party lock", "party_id", partyId, "error", err)
		}
	}()

	return fn()
}

func (s service) acquireRedisLock(ctx context.Context, partyId, token string) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	for {
		ok, err := s.partyRepo.AcquireLock(ctx, partyId, token, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire party lock: %w", err)
		}

		if ok {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return ErrLockTimeout
		case <-time.After(lockRetryInterval):
		}
	}
}
