package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedPosition(t *testing.T) {
	const startAt = int64(1_000_000)

	tests := []struct {
		name     string
		startPos float64
		now      float64
		want     float64
	}{
		{name: "at start", startPos: 0, now: 1_000_000, want: 0},
		{name: "five seconds in", startPos: 0, now: 1_005_000, want: 5},
		{name: "resume offset", startPos: 42.5, now: 1_002_000, want: 44.5},
		{name: "before start from zero is clamped", startPos: 0, now: 998_800, want: 0},
		{name: "before start from resume point", startPos: 10, now: 999_000, want: 9},
		{name: "far before start", startPos: 1, now: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpectedPosition(startAt, tt.startPos, tt.now)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
		})
	}
}

func TestStatePositionAt(t *testing.T) {
	playing := State{Status: StatusPlaying, StartAtServerMs: 10_000, StartPositionSec: 0}
	assert.InDelta(t, 5.0, playing.PositionAt(15_000), 1e-9)

	paused := State{Status: StatusPaused, PausedPositionSec: 10, PausedAtServerMs: 20_000}
	assert.InDelta(t, 10.0, paused.PositionAt(99_000), 1e-9)

	stopped := State{Status: StatusStopped}
	assert.Zero(t, stopped.PositionAt(99_000))
}

func TestEffectiveStatus(t *testing.T) {
	s := State{Status: StatusPreparing, StartAtServerMs: 5_000}
	assert.Equal(t, StatusPreparing, s.EffectiveStatus(4_999))
	assert.Equal(t, StatusPlaying, s.EffectiveStatus(5_000))

	p := State{Status: StatusPaused}
	assert.Equal(t, StatusPaused, p.EffectiveStatus(1<<40))
}
