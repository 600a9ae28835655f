package redis

import (
	"context"
	"fmt"
	"time"
)

func (r repo) AcquireLock(ctx context.Context, partyId, token string, ttl time.Duration) (bool, error) {
	ok, err := r.rc.SetNX(ctx, r.getLockKey(partyId), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return ok, nil
}

// ReleaseLock deletes the lock only while it is still held by token.
func (r repo) ReleaseLock(ctx context.Context, partyId, token string) error {
	if err := r.releaseLockScript.Run(ctx, r.rc, []string{r.getLockKey(partyId)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}
