package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/partysync/internal/repository/party"
	"github.com/sharetube/partysync/pkg/playback"
)

func (s service) checkIfHost(ctx context.Context, partyId, memberId string) error {
	hostId, err := s.partyRepo.GetHostId(ctx, partyId)
	if err != nil {
		if errors.Is(err, party.ErrPartyNotFound) {
			return ErrPartyNotFound
		}

		return fmt.Errorf("failed to get host id: %w", err)
	}

	if hostId != memberId {
		return ErrForbidden
	}

	return nil
}

func (s service) getPlaybackState(ctx context.Context, partyId string) (playback.State, error) {
	ps, err := s.partyRepo.GetPlaybackState(ctx, partyId)
	if err != nil {
		if errors.Is(err, party.ErrPlaybackStateNotFound) {
			return playback.State{}, ErrPartyNotFound
		}

		return playback.State{}, fmt.Errorf("failed to get playback state: %w", err)
	}

	return stateFromRepo(ps), nil
}

func stateFromRepo(ps party.PlaybackState) playback.State {
	s := playback.State{
		Status:            playback.Status(ps.Status),
		StartAtServerMs:   ps.StartAtServerMs,
		StartPositionSec:  ps.StartPositionSec,
		PausedPositionSec: ps.PausedPositionSec,
		PausedAtServerMs:  ps.PausedAtServerMs,
		Version:           ps.Version,
		UpdatedAtServerMs: ps.UpdatedAtServerMs,
	}
	if !s.Status.Valid() {
		s.Status = playback.StatusStopped
	}

	if ps.TrackId != "" {
		s.Track = &playback.Track{
			Id:         ps.TrackId,
			URL:        ps.TrackURL,
			Title:      ps.TrackTitle,
			DurationMs: ps.TrackDurationMs,
		}
	}

	return s
}

func trackToRepo(t playback.Track) party.Track {
	return party.Track{
		Id:         t.Id,
		URL:        t.URL,
		Title:      t.Title,
		DurationMs: t.DurationMs,
	}
}

func trackFromRepo(t party.Track) playback.Track {
	return playback.Track{
		Id:         t.Id,
		URL:        t.URL,
		Title:      t.Title,
		DurationMs: t.DurationMs,
	}
}

func playbackStateParams(partyId string, s playback.State) *party.SetPlaybackStateParams {
	params := party.SetPlaybackStateParams{
		PartyId:           partyId,
		Status:            string(s.Status),
		StartAtServerMs:   s.StartAtServerMs,
		StartPositionSec:  s.StartPositionSec,
		PausedPositionSec: s.PausedPositionSec,
		PausedAtServerMs:  s.PausedAtServerMs,
		Version:           s.Version,
		UpdatedAtServerMs: s.UpdatedAtServerMs,
	}
	if s.Track != nil {
		track := trackToRepo(*s.Track)
		params.Track = &track
	}

	return &params
}
