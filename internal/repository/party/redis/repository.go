package redis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const eventsChannelPattern = "party:*:events"

type repo struct {
	rc                *redis.Client
	logger            *slog.Logger
	expireDuration    time.Duration
	releaseLockScript *redis.Script
}

func NewRepo(rc *redis.Client, logger *slog.Logger, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		logger:         logger,
		expireDuration: expireDuration,
		releaseLockScript: redis.NewScript(`
			if redis.call('GET', KEYS[1]) == ARGV[1] then
				return redis.call('DEL', KEYS[1])
			end
			return 0
		`),
	}
}

func (r repo) getPartyKey(partyId string) string {
	return "party:" + partyId
}

func (r repo) getMemberListKey(partyId string) string {
	return "party:" + partyId + ":members"
}

func (r repo) getMemberKey(partyId, memberId string) string {
	return "party:" + partyId + ":member:" + memberId
}

func (r repo) getPlaybackKey(partyId string) string {
	return "party:" + partyId + ":playback"
}

func (r repo) getQueueKey(partyId string) string {
	return "party:" + partyId + ":queue"
}

func (r repo) getLockKey(partyId string) string {
	return "party:" + partyId + ":lock"
}

func (r repo) getEventsChannel(partyId string) string {
	return "party:" + partyId + ":events"
}

func (r repo) partyIdFromChannel(channel string) string {
	return strings.TrimSuffix(strings.TrimPrefix(channel, "party:"), ":events")
}

// touch refreshes the expiration of every key owned by the party, member
// hashes included, so members of a long running party can still reconnect.
func (r repo) touch(ctx context.Context, pipe redis.Pipeliner, partyId string, extra ...string) {
	pipe.Expire(ctx, r.getPartyKey(partyId), r.expireDuration)
	pipe.Expire(ctx, r.getMemberListKey(partyId), r.expireDuration)
	pipe.Expire(ctx, r.getPlaybackKey(partyId), r.expireDuration)
	pipe.Expire(ctx, r.getQueueKey(partyId), r.expireDuration)
	for _, key := range extra {
		pipe.Expire(ctx, key, r.expireDuration)
	}

	memberIds, err := r.GetMemberIds(ctx, partyId)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to refresh member expiry", "party_id", partyId, "error", err)
		return
	}

	for _, memberId := range memberIds {
		pipe.Expire(ctx, r.getMemberKey(partyId, memberId), r.expireDuration)
	}
}
