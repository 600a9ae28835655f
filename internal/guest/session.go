package guest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/partysync/pkg/clocksync"
	"github.com/sharetube/partysync/pkg/playback"
	"github.com/sharetube/partysync/pkg/protocol"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrNotConnected  = errors.New("push channel not connected")
)

const (
	DefaultDriftInterval = 2 * time.Second
	DefaultPollInterval  = 2500 * time.Millisecond
	DefaultReconnectMin  = 500 * time.Millisecond
	DefaultReconnectMax  = 30 * time.Second
)

// Transport is one live push channel. Messages is closed when the connection
// ends.
type Transport interface {
	Messages() <-chan protocol.Message
	Send(msg protocol.Message) error
	Close() error
}

// DialFunc opens a new push channel. It is called again with backoff every
// time the previous channel ends.
type DialFunc func(ctx context.Context) (Transport, error)

type iStateFetcher interface {
	FetchState(ctx context.Context) (protocol.Snapshot, error)
}

type Config struct {
	Thresholds    Thresholds
	DriftInterval time.Duration
	PollInterval  time.Duration
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
	// InitialSnapshot, when set, is applied before the first connection, e.g.
	// the snapshot returned by joining.
	InitialSnapshot *protocol.Snapshot
}

// LocalStatus is what the local media element is doing, which can differ
// from the party status (e.g. playing remotely, blocked locally).
type LocalStatus string

const (
	LocalIdle         LocalStatus = "idle"
	LocalWaiting      LocalStatus = "waiting"
	LocalPlaying      LocalStatus = "playing"
	LocalPaused       LocalStatus = "paused"
	LocalNeedsGesture LocalStatus = "needs_gesture"
	LocalFailed       LocalStatus = "failed"
)

type Status struct {
	Local         LocalStatus
	PartyStatus   playback.Status
	Track         *playback.Track
	Version       int64
	LastDriftSec  float64
	Failures      int
	ResyncVisible bool
	OffsetMs      float64
	ClockSynced   bool
	Connected     bool
	DialFailures  int
}

type pollResult struct {
	snapshot protocol.Snapshot
	err      error
}

type dialResult struct {
	transport Transport
	err       error
}

// Session reproduces a party's playback on a local media element. All state
// is owned by the goroutine running Run; other methods talk to it through
// channels.
type Session struct {
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger
	media     MediaElement
	dial      DialFunc
	fetcher   iStateFetcher
	estimator *clocksync.Estimator

	inbox     chan func()
	polls     chan pollResult
	dials     chan dialResult
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	running   atomic.Bool

	statusMu sync.RWMutex
	status   Status

	// owned by the event loop
	state          playback.State
	applied        bool
	local          LocalStatus
	trackURL       string
	unlocked       bool
	lastDrift      float64
	corrector      *Corrector
	startTimer     *clock.Timer
	driftTicker    *clock.Ticker
	polling        bool
	transport      Transport
	msgs           <-chan protocol.Message
	connCancel     context.CancelFunc
	dialing        bool
	dialFailures   int
	backoff        time.Duration
	reconnectTimer *clock.Timer
}

func NewSession(
	media MediaElement,
	dial DialFunc,
	fetcher iStateFetcher,
	estimator *clocksync.Estimator,
	clk clock.Clock,
	logger *slog.Logger,
	cfg *Config,
) *Session {
	c := *cfg
	if c.DriftInterval <= 0 {
		c.DriftInterval = DefaultDriftInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = DefaultReconnectMin
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = max(DefaultReconnectMax, c.ReconnectMin)
	}

	s := &Session{
		cfg:       c,
		clock:     clk,
		logger:    logger,
		media:     media,
		dial:      dial,
		fetcher:   fetcher,
		estimator: estimator,
		inbox:     make(chan func()),
		polls:     make(chan pollResult),
		dials:     make(chan dialResult),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
		local:     LocalIdle,
		corrector: NewCorrector(c.Thresholds),
	}
	s.publishStatus()

	return s
}

// Run is the event loop. It returns when ctx is done or Close is called.
func (s *Session) Run(ctx context.Context) error {
	s.running.Store(true)
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		s.teardown()
		wg.Wait()
	}()

	if s.cfg.InitialSnapshot != nil {
		s.applySnapshot(*s.cfg.InitialSnapshot)
		s.publishStatus()
	}

	pollTicker := s.clock.Ticker(s.cfg.PollInterval)
	defer pollTicker.Stop()
	s.poll(ctx, &wg)
	s.connect(ctx, &wg)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closing:
			return nil
		case msg, ok := <-s.msgs:
			if !ok {
				s.logger.InfoContext(ctx, "push channel closed, reconnecting")
				s.disconnect()
				s.scheduleReconnect()
				continue
			}
			s.handleMessage(ctx, msg)
		case res := <-s.dials:
			s.dialing = false
			if res.err != nil {
				s.dialFailures++
				s.logger.WarnContext(ctx, "failed to connect push channel", "error", res.err, "failures", s.dialFailures)
				s.scheduleReconnect()
				break
			}
			s.attach(ctx, &wg, res.transport)
		case <-s.reconnectC():
			s.reconnectTimer = nil
			s.connect(ctx, &wg)
		case res := <-s.polls:
			s.polling = false
			if res.err != nil {
				s.logger.WarnContext(ctx, "failed to poll state", "error", res.err)
				break
			}
			s.applySnapshot(res.snapshot)
		case <-pollTicker.C:
			s.poll(ctx, &wg)
		case <-s.startC():
			s.startTimer = nil
			s.startPlayback(false)
		case <-s.driftC():
			s.checkDrift()
		case fn := <-s.inbox:
			fn()
		}

		s.publishStatus()
	}
}

// Close stops the event loop and every timer it owns. It waits for Run to
// return if Run was started.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.running.Load() {
		<-s.done
	}
}

// Resync is the manual resynchronization triggered by the user. The play
// call counts as a user gesture.
func (s *Session) Resync(ctx context.Context) (Status, error) {
	result := make(chan Status, 1)
	fn := func() {
		s.resync()
		s.publishStatus()
		result <- s.Status()
	}

	select {
	case s.inbox <- fn:
	case <-s.closing:
		return Status{}, ErrSessionClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}

	return <-result, nil
}

// Send delivers a command, e.g. a host transport command, over the current
// push channel.
func (s *Session) Send(ctx context.Context, msg protocol.Message) error {
	result := make(chan error, 1)
	fn := func() {
		if s.transport == nil {
			result <- ErrNotConnected
			return
		}
		result <- s.transport.Send(msg)
	}

	select {
	case s.inbox <- fn:
	case <-s.closing:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-result
}

func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	return s.status
}

func (s *Session) handleMessage(ctx context.Context, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.TimePong:
		if !s.estimator.OnPong(m) {
			s.logger.DebugContext(ctx, "pong ignored", "ping_id", m.PingId)
		}
	case protocol.PartyState:
		s.applySnapshot(m.Snapshot)
	case protocol.Error:
		s.logger.WarnContext(ctx, "server error", "code", m.Code, "message", m.Message)
	default:
		st, ok := protocol.ToState(msg)
		if !ok {
			s.logger.DebugContext(ctx, "unexpected message", "type", msg.Type())
			return
		}
		s.apply(st)
	}
}

// applySnapshot feeds a pulled or pushed snapshot into apply. A party that no
// longer exists stops local playback whatever version was seen before.
func (s *Session) applySnapshot(snap protocol.Snapshot) {
	st := snap.State()
	if !snap.Exists {
		st.Version = max(st.Version, s.state.Version)
	}

	s.apply(st)
}

// apply is the single entry point for remote state, pushed or polled.
func (s *Session) apply(st playback.State) {
	if s.applied && (st.Version < s.state.Version ||
		st.Version == s.state.Version && st.Status == s.state.Status) {
		s.logger.Debug("stale state ignored", "version", st.Version, "current_version", s.state.Version)
		return
	}

	if st.Status == playback.StatusPaused && st.Track == nil {
		st.Track = s.state.Track
	}

	prev := s.state
	s.state = st
	s.applied = true

	s.logger.Info("applying state", "status", st.Status, "version", st.Version)

	// promotion of a schedule that is already being reproduced
	if sameSchedule(prev, st) && (s.local == LocalPlaying || s.local == LocalNeedsGesture) {
		return
	}

	s.cancelStart()

	switch st.Status {
	case playback.StatusStopped:
		s.stopDrift()
		s.media.Pause()
		s.local = LocalIdle
	case playback.StatusPaused:
		s.stopDrift()
		s.load(st.Track)
		s.media.Pause()
		s.media.Seek(st.PausedPositionSec)
		s.local = LocalPaused
	case playback.StatusPreparing, playback.StatusPlaying:
		if !s.load(st.Track) {
			s.stopDrift()
			s.local = LocalFailed
			return
		}

		wait := time.Duration((float64(st.StartAtServerMs) - s.estimator.ServerNowMs()) * float64(time.Millisecond))
		if wait > 0 {
			s.stopDrift()
			s.media.Pause()
			s.media.Seek(st.StartPositionSec)
			s.startTimer = s.clock.Timer(wait)
			s.local = LocalWaiting
			return
		}

		s.startPlayback(false)
	}
}

// startPlayback seeks to the ideal position and starts output.
func (s *Session) startPlayback(userGesture bool) PlayResult {
	ideal := s.state.PositionAt(s.estimator.ServerNowMs())
	s.media.Seek(ideal)

	res := s.media.Play(userGesture || s.unlocked)
	switch r := res.(type) {
	case Started:
		if userGesture {
			s.unlocked = true
		}
		s.local = LocalPlaying
		s.startDrift()
		s.logger.Info("playback started", "position_sec", ideal, "version", s.state.Version)
	case AutoplayBlocked:
		s.stopDrift()
		s.local = LocalNeedsGesture
		s.logger.Info("autoplay blocked, waiting for user gesture")
	case Failed:
		s.stopDrift()
		s.local = LocalFailed
		s.logger.Error("failed to start playback", "error", r.Err)
	}

	return res
}

func (s *Session) resync() {
	if !s.applied {
		return
	}

	switch s.state.Status {
	case playback.StatusPaused:
		s.media.Seek(s.state.PausedPositionSec)
		s.corrector.Reset()
	case playback.StatusPreparing, playback.StatusPlaying:
		if s.local == LocalWaiting {
			s.media.Seek(s.state.StartPositionSec)
			s.unlocked = true
			s.corrector.Reset()
			return
		}

		if _, ok := s.startPlayback(true).(Started); ok {
			s.corrector.Reset()
			s.lastDrift = 0
		}
	}
}

func (s *Session) checkDrift() {
	if s.local != LocalPlaying {
		return
	}

	ideal := s.state.PositionAt(s.estimator.ServerNowMs())
	actual := s.media.Position()
	d := s.corrector.Evaluate(ideal, actual)
	s.lastDrift = d.Drift

	switch d.Action {
	case ActionSoftSeek:
		s.logger.Debug("soft correction", "drift_sec", d.Drift)
		s.media.Seek(ideal)
	case ActionHardSeek:
		s.logger.Info("hard correction", "drift_sec", d.Drift, "failures", d.Failures, "show_resync", d.ShowResync)
		s.media.Seek(ideal)
	}
}

// load switches the media source when the track changed.
func (s *Session) load(track *playback.Track) bool {
	if track == nil || track.URL == "" {
		return s.trackURL != ""
	}
	if track.URL == s.trackURL {
		return true
	}

	if err := s.media.Load(track.URL); err != nil {
		s.logger.Error("failed to load track", "url", track.URL, "error", err)
		s.trackURL = ""
		return false
	}
	s.trackURL = track.URL

	return true
}

func (s *Session) poll(ctx context.Context, wg *sync.WaitGroup) {
	if s.polling || s.fetcher == nil {
		return
	}
	s.polling = true

	wg.Add(1)
	go func() {
		defer wg.Done()
		snap, err := s.fetcher.FetchState(ctx)
		select {
		case s.polls <- pollResult{snapshot: snap, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) startC() <-chan time.Time {
	if s.startTimer == nil {
		return nil
	}
	return s.startTimer.C
}

func (s *Session) driftC() <-chan time.Time {
	if s.driftTicker == nil {
		return nil
	}
	return s.driftTicker.C
}

func (s *Session) cancelStart() {
	if s.startTimer != nil {
		s.startTimer.Stop()
		s.startTimer = nil
	}
}

func (s *Session) startDrift() {
	s.stopDrift()
	s.driftTicker = s.clock.Ticker(s.cfg.DriftInterval)
}

func (s *Session) stopDrift() {
	if s.driftTicker != nil {
		s.driftTicker.Stop()
		s.driftTicker = nil
	}
}

func (s *Session) teardown() {
	s.cancelStart()
	s.stopDrift()
	s.cancelReconnect()
	s.disconnect()
	s.media.Pause()
	s.local = LocalIdle
	s.publishStatus()
}

func (s *Session) publishStatus() {
	offset, synced := s.estimator.Offset()

	st := Status{
		Local:         s.local,
		PartyStatus:   s.state.Status,
		Track:         s.state.Track,
		Version:       s.state.Version,
		LastDriftSec:  s.lastDrift,
		Failures:      s.corrector.Failures(),
		ResyncVisible: s.corrector.ShowResync(),
		OffsetMs:      offset,
		ClockSynced:   synced,
		Connected:     s.transport != nil,
		DialFailures:  s.dialFailures,
	}

	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

func sameSchedule(a, b playback.State) bool {
	if !a.Scheduled() || !b.Scheduled() || a.Track == nil || b.Track == nil {
		return false
	}

	return a.StartAtServerMs == b.StartAtServerMs &&
		a.StartPositionSec == b.StartPositionSec &&
		a.Track.URL == b.Track.URL
}
