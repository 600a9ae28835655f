package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/partysync/internal/repository/party"
	"github.com/sharetube/partysync/pkg/playback"
)

type transition func(ctx context.Context, state playback.State, nowMs int64) (playback.State, error)

// mutate applies a host command: the transition runs under the party lock,
// then the new state is persisted, published and its deadline armed.
func (s service) mutate(ctx context.Context, partyId, senderId string, fn transition) (playback.State, error) {
	var result playback.State
	err := s.withPartyLock(ctx, partyId, func() error {
		if err := s.checkIfHost(ctx, partyId, senderId); err != nil {
			return err
		}

		state, err := s.getPlaybackState(ctx, partyId)
		if err != nil {
			return err
		}

		next, err := fn(ctx, state, s.nowMs())
		if err != nil {
			if errors.Is(err, errUnchanged) {
				result = state
				return nil
			}

			return err
		}

		if err := s.broadcast(ctx, partyId, next); err != nil {
			return err
		}

		s.scheduleDeadline(partyId, next)
		result = next
		return nil
	})
	if err != nil {
		s.reject(err)
		return playback.State{}, err
	}

	return result, nil
}

func (s service) reject(err error) {
	switch {
	case errors.Is(err, ErrForbidden):
		s.metrics.CommandsRejected.WithLabelValues("forbidden").Inc()
	case errors.Is(err, ErrInvalidTransition):
		s.metrics.CommandsRejected.WithLabelValues("invalid_transition").Inc()
	}
}

// nextQueued pops the head of the queue, or returns nil when it is empty.
func (s service) nextQueued(ctx context.Context, partyId string) (*playback.Track, error) {
	t, err := s.partyRepo.PopTrack(ctx, partyId)
	if err != nil {
		if errors.Is(err, party.ErrQueueEmpty) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to pop track: %w", err)
	}

	track := trackFromRepo(t)
	return &track, nil
}

type CommandParams struct {
	PartyId  string
	SenderId string
}

type SelectTrackParams struct {
	PartyId          string
	SenderId         string
	Track            playback.Track
	StartPositionSec float64
}

func (s service) SelectTrack(ctx context.Context, params *SelectTrackParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(_ context.Context, state playback.State, nowMs int64) (playback.State, error) {
		return s.machine.SelectTrack(state, params.Track, params.StartPositionSec, nowMs)
	})
}

type QueueTrackParams struct {
	PartyId  string
	SenderId string
	Track    playback.Track
}

// QueueTrack appends a track to the queue. A stopped party prepares the head
// of the queue right away.
func (s service) QueueTrack(ctx context.Context, params *QueueTrackParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(ctx context.Context, state playback.State, nowMs int64) (playback.State, error) {
		if err := s.partyRepo.PushTrack(ctx, &party.PushTrackParams{
			PartyId: params.PartyId,
			Track:   trackToRepo(params.Track),
		}); err != nil {
			return state, fmt.Errorf("failed to push track: %w", err)
		}

		if state.Status != playback.StatusStopped {
			return state, errUnchanged
		}

		track, err := s.nextQueued(ctx, params.PartyId)
		if err != nil {
			return state, err
		}

		return s.machine.Next(state, track, nowMs), nil
	})
}

func (s service) Go(ctx context.Context, params *CommandParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(_ context.Context, state playback.State, nowMs int64) (playback.State, error) {
		return s.machine.Go(state, nowMs)
	})
}

func (s service) Pause(ctx context.Context, params *CommandParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(_ context.Context, state playback.State, nowMs int64) (playback.State, error) {
		return s.machine.Pause(state, nowMs)
	})
}

func (s service) Resume(ctx context.Context, params *CommandParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(_ context.Context, state playback.State, nowMs int64) (playback.State, error) {
		return s.machine.Resume(state, nowMs)
	})
}

type SeekParams struct {
	PartyId     string
	SenderId    string
	PositionSec float64
}

func (s service) Seek(ctx context.Context, params *SeekParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(_ context.Context, state playback.State, nowMs int64) (playback.State, error) {
		return s.machine.Seek(state, params.PositionSec, nowMs)
	})
}

func (s service) Stop(ctx context.Context, params *CommandParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(_ context.Context, state playback.State, nowMs int64) (playback.State, error) {
		return s.machine.Stop(state, nowMs), nil
	})
}

func (s service) Next(ctx context.Context, params *CommandParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(ctx context.Context, state playback.State, nowMs int64) (playback.State, error) {
		track, err := s.nextQueued(ctx, params.PartyId)
		if err != nil {
			return state, err
		}

		return s.machine.Next(state, track, nowMs), nil
	})
}

type TrackEndedParams struct {
	PartyId  string
	SenderId string
	Version  int64
}

// TrackEnded advances the queue when the host's track finished. Reports for
// any other version than the current one are ignored.
func (s service) TrackEnded(ctx context.Context, params *TrackEndedParams) (playback.State, error) {
	return s.mutate(ctx, params.PartyId, params.SenderId, func(ctx context.Context, state playback.State, nowMs int64) (playback.State, error) {
		if state.Version != params.Version || state.Status == playback.StatusStopped {
			return state, errUnchanged
		}

		track, err := s.nextQueued(ctx, params.PartyId)
		if err != nil {
			return state, err
		}

		return s.machine.Next(state, track, nowMs), nil
	})
}
