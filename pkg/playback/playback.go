// Package playback holds the schedule model shared by the server state machine
// and guest clients. All times are expressed in server milliseconds.
package playback

import "math"

type Status string

const (
	StatusStopped   Status = "stopped"
	StatusPreparing Status = "preparing"
	StatusPlaying   Status = "playing"
	StatusPaused    Status = "paused"
)

func (s Status) Valid() bool {
	switch s {
	case StatusStopped, StatusPreparing, StatusPlaying, StatusPaused:
		return true
	}
	return false
}

type Track struct {
	Id         string `json:"id" validate:"required,max=128"`
	URL        string `json:"url" validate:"required,url"`
	Title      string `json:"title" validate:"max=256"`
	DurationMs int64  `json:"duration_ms" validate:"gte=0"`
}

type State struct {
	Status            Status  `json:"status"`
	Track             *Track  `json:"track"`
	StartAtServerMs   int64   `json:"start_at_server_ms"`
	StartPositionSec  float64 `json:"start_position_sec"`
	PausedPositionSec float64 `json:"paused_position_sec"`
	PausedAtServerMs  int64   `json:"paused_at_server_ms"`
	Version           int64   `json:"version"`
	UpdatedAtServerMs int64   `json:"updated_at_server_ms"`
}

// ExpectedPosition returns the play-head position in seconds implied by a
// schedule at the given server time. It never returns a negative value.
func ExpectedPosition(startAtServerMs int64, startPositionSec float64, nowServerMs float64) float64 {
	return math.Max(0, startPositionSec+(nowServerMs-float64(startAtServerMs))/1000)
}

// Scheduled reports whether the state carries a start schedule.
func (s State) Scheduled() bool {
	return s.Status == StatusPreparing || s.Status == StatusPlaying
}

// EffectiveStatus reports preparing states whose deadline already passed as
// playing. The schedule is the same either way.
func (s State) EffectiveStatus(nowServerMs int64) Status {
	if s.Status == StatusPreparing && nowServerMs >= s.StartAtServerMs {
		return StatusPlaying
	}
	return s.Status
}

// PositionAt is the position the media element should be at, at nowServerMs.
func (s State) PositionAt(nowServerMs float64) float64 {
	switch s.Status {
	case StatusPreparing, StatusPlaying:
		return ExpectedPosition(s.StartAtServerMs, s.StartPositionSec, nowServerMs)
	case StatusPaused:
		return s.PausedPositionSec
	default:
		return 0
	}
}
