package clocksync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFirstSampleAssigns(t *testing.T) {
	e := NewEstimator(clock.NewMock(), Config{})

	// server is 5s ahead, 100ms rtt
	ok := e.Observe(Sample{ClientSendMs: 1000, ServerNowMs: 6050, ClientReceiveMs: 1100})
	require.True(t, ok)

	offset, primed := e.Offset()
	assert.True(t, primed)
	assert.InDelta(t, 5000.0, offset, 1e-9)
}

func TestObserveMovingAverage(t *testing.T) {
	e := NewEstimator(clock.NewMock(), Config{})

	samples := []Sample{
		{ClientSendMs: 0, ServerNowMs: 1050, ClientReceiveMs: 100},  // 1000
		{ClientSendMs: 0, ServerNowMs: 2050, ClientReceiveMs: 100},  // 2000
		{ClientSendMs: 0, ServerNowMs: 550, ClientReceiveMs: 100},   // 500
		{ClientSendMs: 10, ServerNowMs: -190, ClientReceiveMs: 410}, // -400
	}

	var want float64
	for i, s := range samples {
		require.True(t, e.Observe(s))
		if i == 0 {
			want = s.Offset()
		} else {
			want = 0.8*want + 0.2*s.Offset()
		}

		got, _ := e.Offset()
		assert.InDelta(t, want, got, 1e-9, "sample %d", i)
	}
}

func TestObserveDropsSlowSamples(t *testing.T) {
	e := NewEstimator(clock.NewMock(), Config{})
	require.True(t, e.Observe(Sample{ClientSendMs: 0, ServerNowMs: 350, ClientReceiveMs: 100}))
	before, _ := e.Offset()

	assert.False(t, e.Observe(Sample{ClientSendMs: 0, ServerNowMs: 99_999, ClientReceiveMs: 801}))
	assert.True(t, e.Observe(Sample{ClientSendMs: 0, ServerNowMs: 900, ClientReceiveMs: 800}))

	after, _ := e.Offset()
	assert.NotEqual(t, before, after, "800ms round trip is still accepted")
}

func TestObserveSlowSampleBeforePriming(t *testing.T) {
	e := NewEstimator(clock.NewMock(), Config{})
	assert.False(t, e.Observe(Sample{ClientSendMs: 0, ServerNowMs: 5000, ClientReceiveMs: 900}))

	offset, primed := e.Offset()
	assert.False(t, primed)
	assert.Zero(t, offset)
}

func TestPingPong(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(10_000))
	e := NewEstimator(mock, Config{})

	ping := e.NewPing()
	assert.NotEmpty(t, ping.PingId)
	assert.Equal(t, int64(10_000), ping.ClientNowMs)

	mock.Add(200 * time.Millisecond)
	accepted := e.OnPong(protocol.TimePong{PingId: ping.PingId, ServerNowMs: 13_100})
	require.True(t, accepted)

	// 13100 + 100 - 10200
	offset, _ := e.Offset()
	assert.InDelta(t, 3000.0, offset, 1e-9)
	assert.InDelta(t, 10_200.0+3000.0, e.ServerNowMs(), 1e-9)

	// duplicate pong is ignored
	assert.False(t, e.OnPong(protocol.TimePong{PingId: ping.PingId, ServerNowMs: 0}))
	offset, _ = e.Offset()
	assert.InDelta(t, 3000.0, offset, 1e-9)
}

func TestUnknownPongIgnored(t *testing.T) {
	e := NewEstimator(clock.NewMock(), Config{})
	assert.False(t, e.OnPong(protocol.TimePong{PingId: "nope", ServerNowMs: 123}))

	_, primed := e.Offset()
	assert.False(t, primed)
}

func TestLatePongDropped(t *testing.T) {
	mock := clock.NewMock()
	e := NewEstimator(mock, Config{})

	ping := e.NewPing()
	mock.Add(time.Second)
	assert.False(t, e.OnPong(protocol.TimePong{PingId: ping.PingId, ServerNowMs: 50_000}))

	_, primed := e.Offset()
	assert.False(t, primed)
}

func TestStalePendingPruned(t *testing.T) {
	mock := clock.NewMock()
	e := NewEstimator(mock, Config{})

	e.NewPing()
	e.NewPing()
	assert.Equal(t, 2, e.Pending())

	mock.Add(2 * time.Second)
	e.NewPing()
	assert.Equal(t, 1, e.Pending())
}

func TestRunPingsOnInterval(t *testing.T) {
	mock := clock.NewMock()
	e := NewEstimator(mock, Config{PingInterval: 30 * time.Second})

	pings := make(chan protocol.TimePing, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, func(p protocol.TimePing) error {
			pings <- p
			return nil
		})
	}()

	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("no immediate ping")
	}

	mock.Add(30 * time.Second)
	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("no ping after interval")
	}

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRunStopsOnSendError(t *testing.T) {
	e := NewEstimator(clock.NewMock(), Config{})
	sendErr := errors.New("closed")

	err := e.Run(context.Background(), func(protocol.TimePing) error { return sendErr })
	assert.ErrorIs(t, err, sendErr)
}
