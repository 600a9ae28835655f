package protocol

import "github.com/sharetube/partysync/pkg/playback"

// Snapshot is the pull representation of a party's playback state. It is
// also pushed as PARTY_STATE when a websocket connects.
type Snapshot struct {
	Exists            bool             `json:"exists"`
	Status            playback.Status  `json:"status"`
	Track             *playback.Track  `json:"track"`
	StartAtServerMs   int64            `json:"start_at_server_ms"`
	StartPositionSec  float64          `json:"start_position_sec"`
	PausedPositionSec float64          `json:"paused_position_sec"`
	PausedAtServerMs  int64            `json:"paused_at_server_ms"`
	Queue             []playback.Track `json:"queue"`
	Version           int64            `json:"version"`
	ServerNowMs       int64            `json:"server_now_ms"`
}

func (s Snapshot) State() playback.State {
	if !s.Exists {
		return playback.State{Status: playback.StatusStopped, Version: s.Version}
	}

	return playback.State{
		Status:            s.Status,
		Track:             s.Track,
		StartAtServerMs:   s.StartAtServerMs,
		StartPositionSec:  s.StartPositionSec,
		PausedPositionSec: s.PausedPositionSec,
		PausedAtServerMs:  s.PausedAtServerMs,
		Version:           s.Version,
	}
}

// FromState maps a playback state to the message announcing it.
func FromState(s playback.State) Message {
	switch s.Status {
	case playback.StatusPreparing:
		return PreparePlay{Schedule: scheduleOf(s)}
	case playback.StatusPlaying:
		return PlayAt{Schedule: scheduleOf(s)}
	case playback.StatusPaused:
		return Pause{
			PausedPositionSec: s.PausedPositionSec,
			PausedAtServerMs:  s.PausedAtServerMs,
			Version:           s.Version,
		}
	default:
		return Stop{Version: s.Version}
	}
}

// ToState extracts the playback state carried by a transport message. The
// second return value is false for messages that carry no playback state.
// PAUSE carries no track; callers keep the track they already have.
func ToState(m Message) (playback.State, bool) {
	switch m := m.(type) {
	case PreparePlay:
		return m.Schedule.state(playback.StatusPreparing), true
	case PlayAt:
		return m.Schedule.state(playback.StatusPlaying), true
	case Pause:
		return playback.State{
			Status:            playback.StatusPaused,
			PausedPositionSec: m.PausedPositionSec,
			PausedAtServerMs:  m.PausedAtServerMs,
			Version:           m.Version,
		}, true
	case Stop:
		return playback.State{Status: playback.StatusStopped, Version: m.Version}, true
	case PartyState:
		return m.Snapshot.State(), true
	default:
		return playback.State{}, false
	}
}

func scheduleOf(s playback.State) Schedule {
	sch := Schedule{
		StartAtServerMs:  s.StartAtServerMs,
		StartPositionSec: s.StartPositionSec,
		Version:          s.Version,
	}
	if s.Track != nil {
		sch.TrackId = s.Track.Id
		sch.TrackURL = s.Track.URL
		sch.Title = s.Track.Title
		sch.DurationMs = s.Track.DurationMs
	}

	return sch
}

func (sch Schedule) state(status playback.Status) playback.State {
	return playback.State{
		Status: status,
		Track: &playback.Track{
			Id:         sch.TrackId,
			URL:        sch.TrackURL,
			Title:      sch.Title,
			DurationMs: sch.DurationMs,
		},
		StartAtServerMs:  sch.StartAtServerMs,
		StartPositionSec: sch.StartPositionSec,
		Version:          sch.Version,
	}
}
