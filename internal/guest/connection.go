package guest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sharetube/partysync/pkg/protocol"
)

// connect dials a new push channel in the background. The result arrives on
// s.dials.
func (s *Session) connect(ctx context.Context, wg *sync.WaitGroup) {
	if s.dialing || s.transport != nil || s.dial == nil {
		return
	}
	s.dialing = true

	wg.Add(1)
	go func() {
		defer wg.Done()
		t, err := s.dial(ctx)
		select {
		case s.dials <- dialResult{transport: t, err: err}:
		case <-ctx.Done():
			if t != nil {
				t.Close()
			}
		}
	}()
}

// attach starts using t and restarts the ping loop on it. A failed ping
// closes t, which ends its message stream and triggers a reconnect.
func (s *Session) attach(ctx context.Context, wg *sync.WaitGroup, t Transport) {
	s.transport = t
	s.msgs = t.Messages()
	s.dialFailures = 0
	s.backoff = 0

	connCtx, cancel := context.WithCancel(ctx)
	s.connCancel = cancel

	s.logger.InfoContext(ctx, "push channel connected")

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := s.estimator.Run(connCtx, func(p protocol.TimePing) error { return t.Send(p) })
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "failed to send ping", "error", err)
			t.Close()
		}
	}()
}

func (s *Session) disconnect() {
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	s.msgs = nil
}

// scheduleReconnect arms the reconnect timer. The delay starts at
// ReconnectMin and doubles up to ReconnectMax until a dial succeeds.
func (s *Session) scheduleReconnect() {
	if s.reconnectTimer != nil || s.dialing {
		return
	}

	if s.backoff == 0 {
		s.backoff = s.cfg.ReconnectMin
	} else {
		s.backoff = min(s.backoff*2, s.cfg.ReconnectMax)
	}

	s.reconnectTimer = s.clock.Timer(s.backoff)
}

func (s *Session) reconnectC() <-chan time.Time {
	if s.reconnectTimer == nil {
		return nil
	}
	return s.reconnectTimer.C
}

func (s *Session) cancelReconnect() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}
