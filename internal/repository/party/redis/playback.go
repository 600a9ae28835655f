package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/partysync/internal/repository/party"
	omitnilpointers "github.com/sharetube/partysync/pkg/omit-nil-pointers"
)

// SetPlaybackState replaces the stored state. Track fields are omitted when no
// track is loaded, so the hash never keeps a stale track.
func (r repo) SetPlaybackState(ctx context.Context, params *party.SetPlaybackStateParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	var (
		trackId, trackURL, trackTitle *string
		trackDurationMs               *int64
	)
	if params.Track != nil {
		trackId = &params.Track.Id
		trackURL = &params.Track.URL
		trackTitle = &params.Track.Title
		trackDurationMs = &params.Track.DurationMs
	}

	fields := omitnilpointers.OmitNilPointers(map[string]any{
		"status":               params.Status,
		"track_id":             trackId,
		"track_url":            trackURL,
		"track_title":          trackTitle,
		"track_duration_ms":    trackDurationMs,
		"start_at_server_ms":   params.StartAtServerMs,
		"start_position_sec":   params.StartPositionSec,
		"paused_position_sec":  params.PausedPositionSec,
		"paused_at_server_ms":  params.PausedAtServerMs,
		"version":              params.Version,
		"updated_at_server_ms": params.UpdatedAtServerMs,
	})

	playbackKey := r.getPlaybackKey(params.PartyId)
	pipe := r.rc.TxPipeline()
	pipe.Del(ctx, playbackKey)
	pipe.HSet(ctx, playbackKey, fields)
	r.touch(ctx, pipe, params.PartyId)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.DebugContext(ctx, "returned", "error", err)
		return fmt.Errorf("failed to set playback state: %w", err)
	}

	return nil
}

func (r repo) GetPlaybackState(ctx context.Context, partyId string) (party.PlaybackState, error) {
	r.logger.DebugContext(ctx, "called", "party_id", partyId)
	cmd := r.rc.HGetAll(ctx, r.getPlaybackKey(partyId))
	res, err := cmd.Result()
	if err != nil {
		return party.PlaybackState{}, fmt.Errorf("failed to get playback state: %w", err)
	}

	if len(res) == 0 {
		r.logger.DebugContext(ctx, "returned", "error", party.ErrPlaybackStateNotFound)
		return party.PlaybackState{}, party.ErrPlaybackStateNotFound
	}

	var state party.PlaybackState
	if err := cmd.Scan(&state); err != nil {
		return party.PlaybackState{}, fmt.Errorf("failed to scan playback state: %w", err)
	}

	return state, nil
}
