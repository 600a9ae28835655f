package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/partysync/internal/repository/party"
)

func (r repo) PushTrack(ctx context.Context, params *party.PushTrackParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	data, err := json.Marshal(params.Track)
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}

	pipe := r.rc.TxPipeline()
	pipe.RPush(ctx, r.getQueueKey(params.PartyId), data)
	r.touch(ctx, pipe, params.PartyId)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to push track: %w", err)
	}

	return nil
}

func (r repo) PopTrack(ctx context.Context, partyId string) (party.Track, error) {
	r.logger.DebugContext(ctx, "called", "party_id", partyId)
	data, err := r.rc.LPop(ctx, r.getQueueKey(partyId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return party.Track{}, party.ErrQueueEmpty
		}

		return party.Track{}, fmt.Errorf("failed to pop track: %w", err)
	}

	var track party.Track
	if err := json.Unmarshal(data, &track); err != nil {
		return party.Track{}, fmt.Errorf("failed to unmarshal track: %w", err)
	}

	return track, nil
}

func (r repo) GetQueue(ctx context.Context, partyId string) ([]party.Track, error) {
	r.logger.DebugContext(ctx, "called", "party_id", partyId)
	items, err := r.rc.LRange(ctx, r.getQueueKey(partyId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}

	tracks := make([]party.Track, 0, len(items))
	for _, item := range items {
		var track party.Track
		if err := json.Unmarshal([]byte(item), &track); err != nil {
			return nil, fmt.Errorf("failed to unmarshal track: %w", err)
		}

		tracks = append(tracks, track)
	}

	return tracks, nil
}
