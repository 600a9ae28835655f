package party

import (
	"fmt"
	"time"

	"github.com/sharetube/partysync/pkg/playback"
)

const DefaultLeadTime = 1200 * time.Millisecond

// Machine holds the playback transitions. Every method is pure: it takes the
// current state and the server time and returns the next state with its
// version bumped.
type Machine struct {
	// LeadTime is how far in the future a start is scheduled, so every
	// member receives the schedule before it begins.
	LeadTime time.Duration
}

func (m Machine) startAt(nowMs int64) int64 {
	return nowMs + m.LeadTime.Milliseconds()
}

func advance(s playback.State, nowMs int64) playback.State {
	return playback.State{
		Version:           s.Version + 1,
		UpdatedAtServerMs: nowMs,
	}
}

// effective reports a preparing state whose start time passed as playing. Its
// deadline timer may have been lost with the instance that armed it, while
// members already play the schedule.
func effective(s playback.State, nowMs int64) playback.State {
	s.Status = s.EffectiveStatus(nowMs)
	return s
}

func invalid(op string, s playback.State) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, op, s.Status)
}

func (m Machine) prepare(s playback.State, track *playback.Track, positionSec float64, nowMs int64) playback.State {
	next := advance(s, nowMs)
	next.Status = playback.StatusPreparing
	next.Track = track
	next.StartAtServerMs = m.startAt(nowMs)
	next.StartPositionSec = positionSec
	return next
}

// SelectTrack loads a track and schedules it. A playing party has to move on
// with Next instead.
func (m Machine) SelectTrack(s playback.State, track playback.Track, startPositionSec float64, nowMs int64) (playback.State, error) {
	s = effective(s, nowMs)
	if s.Status == playback.StatusPlaying {
		return s, invalid("select a track", s)
	}

	return m.prepare(s, &track, startPositionSec, nowMs), nil
}

// Go starts a preparing schedule right away. The schedule itself is kept.
// An overdue preparing state is promoted too, which is how a lost deadline
// gets its PLAY_AT.
func (m Machine) Go(s playback.State, nowMs int64) (playback.State, error) {
	if s.Status != playback.StatusPreparing {
		return s, invalid("go", s)
	}

	next := s
	next.Status = playback.StatusPlaying
	next.Version = s.Version + 1
	next.UpdatedAtServerMs = nowMs
	return next, nil
}

// Promote is fired by the deadline timer. It only applies to the preparing
// state the timer was armed for.
func (m Machine) Promote(s playback.State, version int64, nowMs int64) (playback.State, bool) {
	if s.Status != playback.StatusPreparing || s.Version != version {
		return s, false
	}

	next, err := m.Go(s, nowMs)
	return next, err == nil
}

func (m Machine) Pause(s playback.State, nowMs int64) (playback.State, error) {
	s = effective(s, nowMs)

	var position float64
	switch s.Status {
	case playback.StatusPlaying:
		position = playback.ExpectedPosition(s.StartAtServerMs, s.StartPositionSec, float64(nowMs))
	case playback.StatusPreparing:
		// nothing has been heard yet
		position = s.StartPositionSec
	default:
		return s, invalid("pause", s)
	}

	next := advance(s, nowMs)
	next.Status = playback.StatusPaused
	next.Track = s.Track
	next.PausedPositionSec = position
	next.PausedAtServerMs = nowMs
	return next, nil
}

func (m Machine) Resume(s playback.State, nowMs int64) (playback.State, error) {
	if s.Status != playback.StatusPaused {
		return s, invalid("resume", s)
	}

	return m.prepare(s, s.Track, s.PausedPositionSec, nowMs), nil
}

func (m Machine) Seek(s playback.State, positionSec float64, nowMs int64) (playback.State, error) {
	s = effective(s, nowMs)

	switch s.Status {
	case playback.StatusPlaying, playback.StatusPreparing:
		return m.prepare(s, s.Track, positionSec, nowMs), nil
	case playback.StatusPaused:
		next := advance(s, nowMs)
		next.Status = playback.StatusPaused
		next.Track = s.Track
		next.PausedPositionSec = positionSec
		next.PausedAtServerMs = nowMs
		return next, nil
	default:
		return s, invalid("seek", s)
	}
}

func (m Machine) Stop(s playback.State, nowMs int64) playback.State {
	next := advance(s, nowMs)
	next.Status = playback.StatusStopped
	return next
}

// Next prepares the given track from its beginning, or stops when there is
// nothing left to play.
func (m Machine) Next(s playback.State, track *playback.Track, nowMs int64) playback.State {
	if track == nil {
		return m.Stop(s, nowMs)
	}

	return m.prepare(s, track, 0, nowMs)
}
