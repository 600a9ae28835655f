// Package clocksync estimates the offset between a client's local clock and
// the server clock from TIME_PING/TIME_PONG round trips.
package clocksync

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sharetube/partysync/pkg/protocol"
)

const (
	DefaultWeight       = 0.2
	DefaultMaxRTT       = 800 * time.Millisecond
	DefaultPingInterval = 30 * time.Second
)

type Config struct {
	// Weight of a new sample in the moving average.
	Weight       float64
	MaxRTT       time.Duration
	PingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Weight <= 0 || c.Weight > 1 {
		c.Weight = DefaultWeight
	}
	if c.MaxRTT <= 0 {
		c.MaxRTT = DefaultMaxRTT
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	return c
}

// Sample is one completed ping round trip.
type Sample struct {
	PingId          string
	ClientSendMs    int64
	ServerNowMs     int64
	ClientReceiveMs int64
}

func (s Sample) RTTMs() int64 {
	return s.ClientReceiveMs - s.ClientSendMs
}

// Offset assumes symmetric latency: the server read its clock half way
// through the round trip.
func (s Sample) Offset() float64 {
	estimatedServerNow := float64(s.ServerNowMs) + float64(s.RTTMs())/2
	return estimatedServerNow - float64(s.ClientReceiveMs)
}

type Estimator struct {
	clock clock.Clock
	cfg   Config

	mu       sync.Mutex
	pending  map[string]int64
	offsetMs float64
	primed   bool
}

func NewEstimator(clk clock.Clock, cfg Config) *Estimator {
	return &Estimator{
		clock:   clk,
		cfg:     cfg.withDefaults(),
		pending: make(map[string]int64),
	}
}

func (e *Estimator) LocalNowMs() int64 {
	return e.clock.Now().UnixMilli()
}

// NewPing registers a pending ping and returns the message to send.
func (e *Estimator) NewPing() protocol.TimePing {
	now := e.LocalNowMs()

	e.mu.Lock()
	defer e.mu.Unlock()

	// a pong for anything older than the rtt ceiling would be rejected anyway
	for id, sentAt := range e.pending {
		if now-sentAt > e.cfg.MaxRTT.Milliseconds() {
			delete(e.pending, id)
		}
	}

	id := uuid.NewString()
	e.pending[id] = now

	return protocol.TimePing{PingId: id, ClientNowMs: now}
}

// OnPong completes a pending ping. Unknown and duplicate ids are ignored.
// It reports whether the sample was accepted into the estimate.
func (e *Estimator) OnPong(pong protocol.TimePong) bool {
	receivedAt := e.LocalNowMs()

	e.mu.Lock()
	sentAt, ok := e.pending[pong.PingId]
	if ok {
		delete(e.pending, pong.PingId)
	}
	e.mu.Unlock()

	if !ok {
		return false
	}

	return e.Observe(Sample{
		PingId:          pong.PingId,
		ClientSendMs:    sentAt,
		ServerNowMs:     pong.ServerNowMs,
		ClientReceiveMs: receivedAt,
	})
}

// Observe folds a sample into the estimate. Samples with a round trip above
// the ceiling are dropped.
func (e *Estimator) Observe(s Sample) bool {
	rtt := s.RTTMs()
	if rtt < 0 || rtt > e.cfg.MaxRTT.Milliseconds() {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.primed {
		e.offsetMs = s.Offset()
		e.primed = true
		return true
	}

	e.offsetMs = (1-e.cfg.Weight)*e.offsetMs + e.cfg.Weight*s.Offset()
	return true
}

// Offset returns serverTime - localTime in milliseconds. Until the first
// sample is accepted it is 0 and the local clock is trusted.
func (e *Estimator) Offset() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.offsetMs, e.primed
}

func (e *Estimator) ServerNowMs() float64 {
	offset, _ := e.Offset()
	return float64(e.LocalNowMs()) + offset
}

func (e *Estimator) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.pending)
}

// Run pings immediately and then on every interval until ctx is done.
func (e *Estimator) Run(ctx context.Context, send func(protocol.TimePing) error) error {
	ticker := e.clock.Ticker(e.cfg.PingInterval)
	defer ticker.Stop()

	for {
		if err := send(e.NewPing()); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
