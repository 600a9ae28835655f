package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/partysync/internal/repository/party"
)

func (r repo) AddMember(ctx context.Context, params *party.AddMemberParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	exists, err := r.rc.Exists(ctx, r.getPartyKey(params.PartyId)).Result()
	if err != nil {
		return fmt.Errorf("failed to check if party exists: %w", err)
	}

	if exists == 0 {
		r.logger.DebugContext(ctx, "returned", "error", party.ErrPartyNotFound)
		return party.ErrPartyNotFound
	}

	memberKey := r.getMemberKey(params.PartyId, params.MemberId)
	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, memberKey, party.Member{
		DisplayName: params.DisplayName,
		JoinedAt:    params.JoinedAt,
	})
	pipe.SAdd(ctx, r.getMemberListKey(params.PartyId), params.MemberId)
	r.touch(ctx, pipe, params.PartyId, memberKey)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

func (r repo) GetMember(ctx context.Context, partyId, memberId string) (party.Member, error) {
	r.logger.DebugContext(ctx, "called", "party_id", partyId, "member_id", memberId)
	cmd := r.rc.HGetAll(ctx, r.getMemberKey(partyId, memberId))
	res, err := cmd.Result()
	if err != nil {
		return party.Member{}, fmt.Errorf("failed to get member: %w", err)
	}

	if len(res) == 0 {
		r.logger.DebugContext(ctx, "returned", "error", party.ErrMemberNotFound)
		return party.Member{}, party.ErrMemberNotFound
	}

	var m party.Member
	if err := cmd.Scan(&m); err != nil {
		return party.Member{}, fmt.Errorf("failed to scan member: %w", err)
	}

	return m, nil
}

func (r repo) GetMemberIds(ctx context.Context, partyId string) ([]string, error) {
	r.logger.DebugContext(ctx, "called", "party_id", partyId)
	memberIds, err := r.rc.SMembers(ctx, r.getMemberListKey(partyId)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	return memberIds, nil
}
