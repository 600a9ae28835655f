package party

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/partysync/pkg/playback"
)

const deadlineTimeout = 5 * time.Second

type deadline struct {
	timer   *clock.Timer
	version int64
}

// deadlines owns one start timer per party. Arming a party replaces its
// previous timer.
type deadlines struct {
	clock  clock.Clock
	mu     sync.Mutex
	timers map[string]deadline
	closed bool
}

func newDeadlines(clk clock.Clock) *deadlines {
	return &deadlines{
		clock:  clk,
		timers: make(map[string]deadline),
	}
}

func (d *deadlines) arm(partyId string, version int64, after time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dl, ok := d.timers[partyId]; ok {
		dl.timer.Stop()
		delete(d.timers, partyId)
	}

	if d.closed {
		return
	}

	d.timers[partyId] = deadline{timer: d.clock.AfterFunc(after, fn), version: version}
}

func (d *deadlines) armed(partyId string, version int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	dl, ok := d.timers[partyId]
	return ok && dl.version == version
}

func (d *deadlines) cancel(partyId string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dl, ok := d.timers[partyId]; ok {
		dl.timer.Stop()
		delete(d.timers, partyId)
	}
}

func (d *deadlines) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.timers)
}

func (d *deadlines) stopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for partyId, dl := range d.timers {
		dl.timer.Stop()
		delete(d.timers, partyId)
	}
	d.closed = true
}

// scheduleDeadline arms the start timer for a preparing state and cancels it
// for any other state.
func (s service) scheduleDeadline(partyId string, state playback.State) {
	if state.Status != playback.StatusPreparing {
		s.deadlines.cancel(partyId)
		return
	}

	after := time.Duration(state.StartAtServerMs-s.nowMs()) * time.Millisecond
	if after < 0 {
		after = 0
	}

	version := state.Version
	s.deadlines.arm(partyId, version, after, func() {
		s.onDeadline(partyId, version)
	})
}

// ensureDeadline re-arms the start timer of a preparing state this instance
// does not own, e.g. after the owning instance restarted. An overdue state is
// promoted right away so PLAY_AT still goes out.
func (s service) ensureDeadline(partyId string, state playback.State) {
	if state.Status != playback.StatusPreparing || s.deadlines.armed(partyId, state.Version) {
		return
	}

	s.logger.Info("re-arming start deadline", "party_id", partyId, "version", state.Version)
	s.scheduleDeadline(partyId, state)
}

func (s service) onDeadline(partyId string, version int64) {
	ctx, cancel := context.WithTimeout(context.Background(), deadlineTimeout)
	defer cancel()

	err := s.withPartyLock(ctx, partyId, func() error {
		state, err := s.getPlaybackState(ctx, partyId)
		if err != nil {
			return err
		}

		next, ok := s.machine.Promote(state, version, s.nowMs())
		if !ok {
			return nil
		}

		if err := s.broadcast(ctx, partyId, next); err != nil {
			return err
		}

		s.deadlines.cancel(partyId)
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to promote preparing state", "party_id", partyId, "version", version, "error", err)
	}
}
