package party

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sharetube/partysync/pkg/playback"
	"github.com/sharetube/partysync/pkg/protocol"
)

// GetSnapshot returns the party's current schedule for late joiners and
// reconnecting members. An unknown party yields a stopped snapshot with
// Exists unset. A preparing state whose start time has passed is reported as
// playing, which covers a deadline timer lost with its instance.
func (s service) GetSnapshot(ctx context.Context, partyId string) (protocol.Snapshot, error) {
	nowMs := s.nowMs()
	state, err := s.getPlaybackState(ctx, partyId)
	if err != nil {
		if errors.Is(err, ErrPartyNotFound) {
			s.metrics.Recoveries.WithLabelValues(strconv.FormatBool(false)).Inc()
			return protocol.Snapshot{
				Status:      playback.StatusStopped,
				Queue:       []playback.Track{},
				ServerNowMs: nowMs,
			}, nil
		}

		return protocol.Snapshot{}, err
	}

	s.ensureDeadline(partyId, state)

	queue, err := s.partyRepo.GetQueue(ctx, partyId)
	if err != nil {
		return protocol.Snapshot{}, fmt.Errorf("failed to get queue: %w", err)
	}

	tracks := make([]playback.Track, 0, len(queue))
	for _, t := range queue {
		tracks = append(tracks, trackFromRepo(t))
	}

	s.metrics.Recoveries.WithLabelValues(strconv.FormatBool(true)).Inc()
	return protocol.Snapshot{
		Exists:            true,
		Status:            state.EffectiveStatus(nowMs),
		Track:             state.Track,
		StartAtServerMs:   state.StartAtServerMs,
		StartPositionSec:  state.StartPositionSec,
		PausedPositionSec: state.PausedPositionSec,
		PausedAtServerMs:  state.PausedAtServerMs,
		Queue:             tracks,
		Version:           state.Version,
		ServerNowMs:       nowMs,
	}, nil
}
