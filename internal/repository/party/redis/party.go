package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/partysync/internal/repository/party"
	"github.com/sharetube/partysync/pkg/playback"
)

func (r repo) SetParty(ctx context.Context, params *party.SetPartyParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	partyKey := r.getPartyKey(params.PartyId)

	created, err := r.rc.HSetNX(ctx, partyKey, "host_id", params.HostId).Result()
	if err != nil {
		return fmt.Errorf("failed to set party: %w", err)
	}

	if !created {
		r.logger.DebugContext(ctx, "returned", "error", party.ErrPartyAlreadyExists)
		return party.ErrPartyAlreadyExists
	}

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, partyKey, "created_at", params.CreatedAt)
	pipe.HSet(ctx, r.getPlaybackKey(params.PartyId),
		"status", string(playback.StatusStopped),
		"version", 0,
		"updated_at_server_ms", params.CreatedAt,
	)
	r.touch(ctx, pipe, params.PartyId)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to set party: %w", err)
	}

	return nil
}

func (r repo) GetParty(ctx context.Context, partyId string) (party.Party, error) {
	r.logger.DebugContext(ctx, "called", "party_id", partyId)
	cmd := r.rc.HGetAll(ctx, r.getPartyKey(partyId))
	res, err := cmd.Result()
	if err != nil {
		return party.Party{}, fmt.Errorf("failed to get party: %w", err)
	}

	if len(res) == 0 {
		r.logger.DebugContext(ctx, "returned", "error", party.ErrPartyNotFound)
		return party.Party{}, party.ErrPartyNotFound
	}

	var p party.Party
	if err := cmd.Scan(&p); err != nil {
		return party.Party{}, fmt.Errorf("failed to scan party: %w", err)
	}

	return p, nil
}

func (r repo) GetHostId(ctx context.Context, partyId string) (string, error) {
	r.logger.DebugContext(ctx, "called", "party_id", partyId)
	p, err := r.GetParty(ctx, partyId)
	if err != nil {
		return "", err
	}

	return p.HostId, nil
}

func (r repo) RemoveParty(ctx context.Context, partyId string) error {
	r.logger.DebugContext(ctx, "called", "party_id", partyId)
	memberIds, err := r.GetMemberIds(ctx, partyId)
	if err != nil {
		return err
	}

	keys := []string{
		r.getPartyKey(partyId),
		r.getMemberListKey(partyId),
		r.getPlaybackKey(partyId),
		r.getQueueKey(partyId),
	}
	for _, memberId := range memberIds {
		keys = append(keys, r.getMemberKey(partyId, memberId))
	}

	res, err := r.rc.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("failed to remove party: %w", err)
	}

	if res == 0 {
		return party.ErrPartyNotFound
	}

	return nil
}
