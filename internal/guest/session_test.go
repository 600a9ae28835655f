package guest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/partysync/pkg/clocksync"
	"github.com/sharetube/partysync/pkg/playback"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseMs int64 = 1_700_000_000_000

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTransport struct {
	msgs      chan protocol.Message
	closeOnce sync.Once

	mu     sync.Mutex
	sent   []protocol.Message
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{msgs: make(chan protocol.Message)}
}

func (f *fakeTransport) Messages() <-chan protocol.Message {
	return f.msgs
}

func (f *fakeTransport) Send(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrTransportClosed
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.msgs)
	})
	return nil
}

func (f *fakeTransport) sentMessages() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]protocol.Message(nil), f.sent...)
}

func (f *fakeTransport) pings() int {
	n := 0
	for _, msg := range f.sentMessages() {
		if _, ok := msg.(protocol.TimePing); ok {
			n++
		}
	}
	return n
}

var errDialRefused = errors.New("connection refused")

// fakeDialer hands out queued transports and fails once the queue is empty.
type fakeDialer struct {
	mu     sync.Mutex
	queue  []*fakeTransport
	dialed int
}

func (d *fakeDialer) add(t *fakeTransport) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.queue = append(d.queue, t)
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dialed
}

func (d *fakeDialer) Dial(context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dialed++
	if len(d.queue) == 0 {
		return nil, errDialRefused
	}
	t := d.queue[0]
	d.queue = d.queue[1:]
	return t, nil
}

type fakeFetcher struct {
	mu       sync.Mutex
	snapshot protocol.Snapshot
}

func (f *fakeFetcher) set(s protocol.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.snapshot = s
}

func (f *fakeFetcher) FetchState(context.Context) (protocol.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.snapshot, nil
}

type testGuest struct {
	clock     *clock.Mock
	media     *SimulatedMedia
	dialer    *fakeDialer
	transport *fakeTransport
	session   *Session
}

// newTestGuest starts a session whose local clock is skewMs ahead of the
// server and whose estimator already measured that skew.
func newTestGuest(t *testing.T, fetcher iStateFetcher, skewMs int64) *testGuest {
	t.Helper()

	return startTestGuest(t, fetcher, skewMs, &Config{}, newFakeTransport())
}

// startTestGuest is newTestGuest with a config and the transports the dialer
// hands out in order.
func startTestGuest(t *testing.T, fetcher iStateFetcher, skewMs int64, cfg *Config, transports ...*fakeTransport) *testGuest {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(time.UnixMilli(baseMs + skewMs))

	est := clocksync.NewEstimator(clk, clocksync.Config{})
	require.True(t, est.Observe(clocksync.Sample{
		ClientSendMs:    baseMs + skewMs,
		ServerNowMs:     baseMs,
		ClientReceiveMs: baseMs + skewMs,
	}))

	g := &testGuest{
		clock:  clk,
		media:  NewSimulatedMedia(clk),
		dialer: &fakeDialer{},
	}
	for _, tr := range transports {
		g.dialer.add(tr)
	}
	if len(transports) > 0 {
		g.transport = transports[0]
	}
	g.session = NewSession(g.media, g.dialer.Dial, fetcher, est, clk, discardLogger, cfg)

	go g.session.Run(context.Background())
	t.Cleanup(g.session.Close)

	return g
}

// push hands a message to the event loop and waits until it was processed.
func (g *testGuest) push(msg protocol.Message) {
	g.pushVia(g.transport, msg)
}

func (g *testGuest) pushVia(tr *fakeTransport, msg protocol.Message) {
	tr.msgs <- msg
	g.session.inbox <- func() {}
}

func (g *testGuest) waitConnected(t *testing.T, want bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return g.session.Status().Connected == want
	}, time.Second, 5*time.Millisecond)
}

func (g *testGuest) waitLocal(t *testing.T, want LocalStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return g.session.Status().Local == want
	}, time.Second, 5*time.Millisecond, "want local status %s, have %s", want, g.session.Status().Local)
}

func schedule(startAtMs int64, startPositionSec float64, version int64) protocol.Schedule {
	return protocol.Schedule{
		TrackId:          "t-1",
		TrackURL:         "https://cdn.example.com/t-1.mp3",
		Title:            "Track",
		DurationMs:       180_000,
		StartAtServerMs:  startAtMs,
		StartPositionSec: startPositionSec,
		Version:          version,
	}
}

func TestLateJoinerSeeksToElapsedPosition(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs-5000, 0, 1)})

	g.waitLocal(t, LocalPlaying)
	assert.InDelta(t, 5.0, g.media.Position(), 0.01)
	assert.True(t, g.media.Playing())
	assert.Equal(t, "https://cdn.example.com/t-1.mp3", g.media.URL())
}

func TestPreparingWaitsForStartTime(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PreparePlay{Schedule: schedule(baseMs+1200, 12, 1)})
	g.waitLocal(t, LocalWaiting)
	assert.False(t, g.media.Playing())
	assert.Equal(t, 12.0, g.media.Position())

	g.clock.Add(1200 * time.Millisecond)
	g.waitLocal(t, LocalPlaying)
	assert.InDelta(t, 12.0, g.media.Position(), 0.01)

	// the promotion to PLAY_AT repeats the schedule and must not cause a seek
	seeks := g.media.Seeks()
	g.push(protocol.PlayAt{Schedule: schedule(baseMs+1200, 12, 2)})
	assert.Equal(t, int64(2), g.session.Status().Version)
	assert.Equal(t, seeks, g.media.Seeks())
	assert.Equal(t, LocalPlaying, g.session.Status().Local)
}

func TestAutoplayBlockedWaitsForGesture(t *testing.T) {
	g := newTestGuest(t, nil, 0)
	g.media.SetAutoplayBlocked(true)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs-2000, 0, 1)})
	g.waitLocal(t, LocalNeedsGesture)
	assert.False(t, g.media.Playing())

	// a repeated schedule is not retried silently
	g.push(protocol.PlayAt{Schedule: schedule(baseMs-2000, 0, 2)})
	assert.Equal(t, LocalNeedsGesture, g.session.Status().Local)
	assert.Equal(t, 0, g.media.Plays())

	g.clock.Add(time.Second)
	st, err := g.session.Resync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LocalPlaying, st.Local)
	assert.False(t, st.ResyncVisible)
	assert.True(t, g.media.Playing())
	assert.InDelta(t, 3.0, g.media.Position(), 0.01)
}

func TestPauseStopsCorrectionLoop(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs, 0, 1)})
	g.waitLocal(t, LocalPlaying)

	g.push(protocol.Pause{PausedPositionSec: 4, PausedAtServerMs: baseMs + 4000, Version: 2})
	g.waitLocal(t, LocalPaused)
	assert.Equal(t, 4.0, g.media.Position())
	require.NotNil(t, g.session.Status().Track)
	assert.Equal(t, "t-1", g.session.Status().Track.Id)

	seeks := g.media.Seeks()
	g.clock.Add(10 * time.Second)
	g.session.inbox <- func() {}

	assert.Equal(t, seeks, g.media.Seeks())
	assert.Equal(t, 4.0, g.media.Position())
}

func TestStaleStateIgnored(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs, 0, 3)})
	g.waitLocal(t, LocalPlaying)

	g.push(protocol.Pause{PausedPositionSec: 1, Version: 2})
	g.push(protocol.Stop{Version: 1})

	st := g.session.Status()
	assert.Equal(t, LocalPlaying, st.Local)
	assert.Equal(t, int64(3), st.Version)
	assert.True(t, g.media.Playing())
}

func TestSoftCorrection(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs, 0, 1)})
	g.waitLocal(t, LocalPlaying)
	g.media.SetRate(1.2)

	g.clock.Add(2 * time.Second)
	require.Eventually(t, func() bool {
		return g.session.Status().LastDriftSec > 0.3
	}, time.Second, 5*time.Millisecond)

	st := g.session.Status()
	assert.InDelta(t, 0.4, st.LastDriftSec, 0.01)
	assert.False(t, st.ResyncVisible)
	assert.InDelta(t, 2.0, g.media.Position(), 0.01)
}

func TestSevereDriftShowsResync(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs, 0, 1)})
	g.waitLocal(t, LocalPlaying)
	g.media.SetRate(2)

	g.clock.Add(2 * time.Second)
	require.Eventually(t, func() bool {
		return g.session.Status().ResyncVisible
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, g.session.Status().Failures)

	g.media.SetRate(1)
	st, err := g.session.Resync(context.Background())
	require.NoError(t, err)
	assert.False(t, st.ResyncVisible)
	assert.Equal(t, 0, st.Failures)
}

func TestPollFallback(t *testing.T) {
	fetcher := &fakeFetcher{}
	fetcher.set(protocol.Snapshot{
		Exists:          true,
		Status:          playback.StatusPlaying,
		Track:           &playback.Track{Id: "t-1", URL: "https://cdn.example.com/t-1.mp3"},
		StartAtServerMs: baseMs - 3000,
		Version:         1,
	})

	g := newTestGuest(t, fetcher, 0)
	g.transport.Close()

	g.waitLocal(t, LocalPlaying)
	assert.InDelta(t, 3.0, g.media.Position(), 0.01)

	fetcher.set(protocol.Snapshot{
		Exists:            true,
		Status:            playback.StatusPaused,
		Track:             &playback.Track{Id: "t-1", URL: "https://cdn.example.com/t-1.mp3"},
		PausedPositionSec: 7,
		Version:           2,
	})
	g.clock.Add(DefaultPollInterval)

	g.waitLocal(t, LocalPaused)
	assert.Equal(t, 7.0, g.media.Position())
}

func TestEndedPartyStopsPlayback(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs, 0, 4)})
	g.waitLocal(t, LocalPlaying)

	g.push(protocol.PartyState{Snapshot: protocol.Snapshot{Exists: false, Status: playback.StatusStopped}})
	assert.Equal(t, LocalIdle, g.session.Status().Local)
	assert.False(t, g.media.Playing())
}

func TestGuestsWithSkewedClocksConverge(t *testing.T) {
	ahead := newTestGuest(t, nil, 50)
	behind := newTestGuest(t, nil, -50)
	behind.media.SetRate(1.2)

	msg := protocol.PreparePlay{Schedule: schedule(baseMs+1000, 0, 1)}
	ahead.push(msg)
	behind.push(msg)
	ahead.waitLocal(t, LocalWaiting)
	behind.waitLocal(t, LocalWaiting)

	advance := func(d time.Duration) {
		ahead.clock.Add(d)
		behind.clock.Add(d)
	}

	advance(time.Second)
	ahead.waitLocal(t, LocalPlaying)
	behind.waitLocal(t, LocalPlaying)
	assert.InDelta(t, ahead.media.Position(), behind.media.Position(), 0.01)

	// one correction cycle
	advance(DefaultDriftInterval)
	require.Eventually(t, func() bool {
		return behind.session.Status().LastDriftSec > 0.3
	}, time.Second, 5*time.Millisecond)

	assert.InDelta(t, 2.0, ahead.media.Position(), 0.01)
	assert.InDelta(t, 2.0, behind.media.Position(), 0.01)
	assert.InDelta(t, ahead.media.Position(), behind.media.Position(), 0.05)
}

func TestClosePlaysNoMore(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PreparePlay{Schedule: schedule(baseMs+1000, 0, 1)})
	g.waitLocal(t, LocalWaiting)

	g.session.Close()
	assert.Equal(t, LocalIdle, g.session.Status().Local)

	g.clock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, g.media.Playing())

	_, err := g.session.Resync(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionPingsServer(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	require.Eventually(t, func() bool {
		return g.transport.pings() > 0
	}, time.Second, 5*time.Millisecond)

	ping, ok := g.transport.sentMessages()[0].(protocol.TimePing)
	require.True(t, ok)
	assert.Equal(t, baseMs, ping.ClientNowMs)
}

func TestReconnectResumesPushAndPings(t *testing.T) {
	g := newTestGuest(t, nil, 0)

	g.push(protocol.PlayAt{Schedule: schedule(baseMs-2000, 0, 1)})
	g.waitLocal(t, LocalPlaying)
	require.Eventually(t, func() bool { return g.transport.pings() > 0 }, time.Second, 5*time.Millisecond)

	g.transport.Close()
	g.waitConnected(t, false)
	assert.Equal(t, LocalPlaying, g.session.Status().Local, "playback continues on the last schedule")

	// first retry fails, the next one waits twice as long
	g.clock.Add(DefaultReconnectMin)
	require.Eventually(t, func() bool {
		return g.session.Status().DialFailures == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, g.dialer.calls())

	next := newFakeTransport()
	g.dialer.add(next)
	g.clock.Add(DefaultReconnectMin)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, g.dialer.calls())

	g.clock.Add(DefaultReconnectMin)
	g.waitConnected(t, true)
	assert.Equal(t, 3, g.dialer.calls())
	assert.Zero(t, g.session.Status().DialFailures)

	require.Eventually(t, func() bool { return next.pings() > 0 }, time.Second, 5*time.Millisecond)

	// the server greets a reconnecting member with the full state
	g.pushVia(next, protocol.PartyState{Snapshot: protocol.Snapshot{
		Exists:            true,
		Status:            playback.StatusPaused,
		Track:             &playback.Track{Id: "t-1", URL: "https://cdn.example.com/t-1.mp3"},
		PausedPositionSec: 9,
		Version:           2,
	}})
	assert.Equal(t, LocalPaused, g.session.Status().Local)
	assert.Equal(t, 9.0, g.media.Position())

	g.pushVia(next, protocol.PlayAt{Schedule: schedule(baseMs+1000, 9, 3)})
	assert.Equal(t, LocalPlaying, g.session.Status().Local)
	assert.EqualValues(t, 3, g.session.Status().Version)
}

func TestFailedPingTriggersReconnect(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	g := startTestGuest(t, nil, 0, &Config{}, first, second)
	g.waitConnected(t, true)
	require.Eventually(t, func() bool { return first.pings() > 0 }, time.Second, 5*time.Millisecond)

	// a transport that rejects writes is torn down and replaced
	first.mu.Lock()
	first.closed = true
	first.mu.Unlock()
	g.clock.Add(clocksync.DefaultPingInterval)

	g.waitConnected(t, false)
	g.clock.Add(DefaultReconnectMin)
	g.waitConnected(t, true)
	require.Eventually(t, func() bool { return second.pings() > 0 }, time.Second, 5*time.Millisecond)
}

func TestInitialSnapshotAppliedBeforeConnect(t *testing.T) {
	snap := protocol.Snapshot{
		Exists:          true,
		Status:          playback.StatusPlaying,
		Track:           &playback.Track{Id: "t-1", URL: "https://cdn.example.com/t-1.mp3"},
		StartAtServerMs: baseMs - 4000,
		Version:         3,
	}
	g := startTestGuest(t, nil, 0, &Config{InitialSnapshot: &snap})

	g.waitLocal(t, LocalPlaying)
	assert.InDelta(t, 4.0, g.media.Position(), 0.01)
	assert.EqualValues(t, 3, g.session.Status().Version)
	assert.False(t, g.session.Status().Connected)
}

func TestSendForwardsCommands(t *testing.T) {
	g := newTestGuest(t, nil, 0)
	g.waitConnected(t, true)

	require.NoError(t, g.session.Send(context.Background(), protocol.PausePlayback{}))
	assert.Contains(t, g.transport.sentMessages(), protocol.Message(protocol.PausePlayback{}))

	g.transport.Close()
	g.waitConnected(t, false)
	assert.ErrorIs(t, g.session.Send(context.Background(), protocol.PausePlayback{}), ErrNotConnected)

	g.session.Close()
	assert.ErrorIs(t, g.session.Send(context.Background(), protocol.PausePlayback{}), ErrSessionClosed)
}
