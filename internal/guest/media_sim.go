package guest

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrNoSource = errors.New("no source loaded")

// SimulatedMedia is a MediaElement whose play-head advances with a clock. It
// backs the guest CLI and tests.
type SimulatedMedia struct {
	clock clock.Clock

	mu sync.Mutex
	// play-head speed relative to the clock, 1 is real time
	rate            float64
	autoplayBlocked bool
	url             string
	playing         bool
	basePosition    float64
	baseAt          time.Time
	seeks           int
	plays           int
}

func NewSimulatedMedia(clk clock.Clock) *SimulatedMedia {
	return &SimulatedMedia{clock: clk, rate: 1}
}

// SetRate changes play-head speed, e.g. 1.01 for a device running 1% fast.
func (m *SimulatedMedia) SetRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rebase()
	m.rate = rate
}

// SetAutoplayBlocked makes Play without a user gesture return AutoplayBlocked.
func (m *SimulatedMedia) SetAutoplayBlocked(blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.autoplayBlocked = blocked
}

func (m *SimulatedMedia) Load(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.url = url
	m.playing = false
	m.basePosition = 0
	m.baseAt = m.clock.Now()
	return nil
}

func (m *SimulatedMedia) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.position()
}

func (m *SimulatedMedia) Seek(positionSec float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.basePosition = max(0, positionSec)
	m.baseAt = m.clock.Now()
	m.seeks++
}

func (m *SimulatedMedia) Play(userGesture bool) PlayResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.url == "" {
		return Failed{Err: ErrNoSource}
	}
	if m.autoplayBlocked && !userGesture {
		return AutoplayBlocked{}
	}
	if !m.playing {
		m.baseAt = m.clock.Now()
		m.playing = true
	}
	m.plays++

	return Started{}
}

func (m *SimulatedMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rebase()
	m.playing = false
}

func (m *SimulatedMedia) Playing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.playing
}

func (m *SimulatedMedia) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.url
}

// Seeks counts Seek calls.
func (m *SimulatedMedia) Seeks() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.seeks
}

func (m *SimulatedMedia) Plays() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.plays
}

func (m *SimulatedMedia) position() float64 {
	if !m.playing {
		return m.basePosition
	}

	elapsed := m.clock.Since(m.baseAt).Seconds()
	return m.basePosition + elapsed*m.rate
}

func (m *SimulatedMedia) rebase() {
	m.basePosition = m.position()
	m.baseAt = m.clock.Now()
}
