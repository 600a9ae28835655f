package guest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAppConfig() *AppConfig {
	return &AppConfig{
		ServerURL:      "http://localhost:8080",
		DisplayName:    "guest",
		RequestTimeout: time.Second,
		PingInterval:   30 * time.Second,
		DriftInterval:  2 * time.Second,
		PollInterval:   2500 * time.Millisecond,
		ReconnectMin:   500 * time.Millisecond,
		ReconnectMax:   30 * time.Second,
		StatusInterval: 5 * time.Second,
		Thresholds:     DefaultThresholds(),
		PlaybackRate:   1,
	}
}

func TestAppConfigValidate(t *testing.T) {
	require.NoError(t, validAppConfig().Validate())

	cfg := validAppConfig()
	cfg.ServerURL = ""
	assert.Error(t, cfg.Validate())

	cfg = validAppConfig()
	cfg.Thresholds.Soft = 0.1
	assert.Error(t, cfg.Validate())

	cfg = validAppConfig()
	cfg.PlaybackRate = 0
	assert.Error(t, cfg.Validate())

	cfg = validAppConfig()
	cfg.ReconnectMax = 100 * time.Millisecond
	assert.Error(t, cfg.Validate())
}

func TestReadCommandsResync(t *testing.T) {
	g := newTestGuest(t, nil, 0)
	g.media.SetAutoplayBlocked(true)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs-1000, 0, 1)})
	g.waitLocal(t, LocalNeedsGesture)

	readCommands(context.Background(), strings.NewReader("nonsense\nresync\n"), g.session, discardLogger)
	assert.Equal(t, LocalPlaying, g.session.Status().Local)
}

func TestParseCommand(t *testing.T) {
	msg, err := parseCommand("select https://cdn.example.com/a.mp3 Song A", 0)
	require.NoError(t, err)
	sel, ok := msg.(protocol.SelectTrack)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/a.mp3", sel.Track.URL)
	assert.Equal(t, "Song A", sel.Track.Title)
	assert.NotEmpty(t, sel.Track.Id)

	msg, err = parseCommand("queue https://cdn.example.com/b.mp3", 0)
	require.NoError(t, err)
	assert.IsType(t, protocol.QueueTrack{}, msg)

	msg, err = parseCommand("seek 42.5", 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.Seek{PositionSec: 42.5}, msg)

	msg, err = parseCommand("end", 7)
	require.NoError(t, err)
	assert.Equal(t, protocol.TrackEnded{Version: 7}, msg)

	for line, want := range map[string]protocol.Message{
		"go":     protocol.Go{},
		"pause":  protocol.PausePlayback{},
		"resume": protocol.Resume{},
		"stop":   protocol.StopPlayback{},
		"next":   protocol.NextTrack{},
	} {
		msg, err := parseCommand(line, 0)
		require.NoError(t, err, line)
		assert.Equal(t, want, msg, line)
	}

	_, err = parseCommand("select", 0)
	assert.Error(t, err)
	_, err = parseCommand("seek -3", 0)
	assert.Error(t, err)
	_, err = parseCommand("rewind", 0)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestReadCommandsSendsHostCommands(t *testing.T) {
	g := newTestGuest(t, nil, 0)
	g.waitConnected(t, true)

	readCommands(context.Background(), strings.NewReader("select https://cdn.example.com/a.mp3\nbogus\ngo\n"), g.session, discardLogger)

	sent := g.transport.sentMessages()
	var types []protocol.Type
	for _, msg := range sent {
		if msg.Type() != protocol.TypeTimePing {
			types = append(types, msg.Type())
		}
	}
	assert.Equal(t, []protocol.Type{protocol.TypeSelectTrack, protocol.TypeGo}, types)
}

func TestReportStatusStopsWithContext(t *testing.T) {
	g := newTestGuest(t, nil, 0)
	clk := clock.NewMock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reportStatus(ctx, clk, time.Second, g.session, g.media, discardLogger)
		close(done)
	}()

	clk.Add(3 * time.Second)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("status reporter did not stop")
	}
}
