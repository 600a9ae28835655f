package party

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sharetube/partysync/internal/metrics"
	"github.com/sharetube/partysync/internal/repository/connection"
	"github.com/sharetube/partysync/internal/repository/party"
)

type iPartyRepo interface {
	// party
	SetParty(context.Context, *party.SetPartyParams) error
	GetHostId(context.Context, string) (string, error)
	RemoveParty(context.Context, string) error
	// member
	AddMember(context.Context, *party.AddMemberParams) error
	GetMember(ctx context.Context, partyId, memberId string) (party.Member, error)
	// playback
	SetPlaybackState(context.Context, *party.SetPlaybackStateParams) error
	GetPlaybackState(context.Context, string) (party.PlaybackState, error)
	// queue
	PushTrack(context.Context, *party.PushTrackParams) error
	PopTrack(context.Context, string) (party.Track, error)
	GetQueue(context.Context, string) ([]party.Track, error)
	// lock
	AcquireLock(ctx context.Context, partyId, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, partyId, token string) error
	// events
	PublishEvent(context.Context, *party.PublishEventParams) error
	SubscribeEvents(context.Context) (<-chan party.Event, error)
}

type iConnRepo interface {
	Add(partyId, memberId string, conn connection.Conn)
	Remove(partyId, memberId string, conn connection.Conn) error
	RemoveParty(partyId string)
	GetConns(partyId string) map[string]connection.Conn
	GetPartyIds() []string
}

type Config struct {
	Secret   string
	LeadTime time.Duration
	// LockTTL bounds how long a crashed instance can hold a party lock.
	LockTTL  time.Duration
	LockWait time.Duration
}

type service struct {
	partyRepo iPartyRepo
	connRepo  iConnRepo
	metrics   *metrics.Metrics
	clock     clock.Clock
	logger    *slog.Logger
	machine   Machine
	secret    string
	lockTTL   time.Duration
	lockWait  time.Duration
	locks     *partyLocks
	deadlines *deadlines
}

func NewService(partyRepo iPartyRepo, connRepo iConnRepo, m *metrics.Metrics, clk clock.Clock, logger *slog.Logger, cfg *Config) *service {
	leadTime := cfg.LeadTime
	if leadTime <= 0 {
		leadTime = DefaultLeadTime
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}

	lockWait := cfg.LockWait
	if lockWait <= 0 {
		lockWait = 3 * time.Second
	}

	return &service{
		partyRepo: partyRepo,
		connRepo:  connRepo,
		metrics:   m,
		clock:     clk,
		logger:    logger,
		machine:   Machine{LeadTime: leadTime},
		secret:    cfg.Secret,
		lockTTL:   lockTTL,
		lockWait:  lockWait,
		locks:     newPartyLocks(),
		deadlines: newDeadlines(clk),
	}
}

func (s service) nowMs() int64 {
	return s.clock.Now().UnixMilli()
}

// ServerNowMs is the authoritative server clock.
func (s service) ServerNowMs() int64 {
	return s.nowMs()
}

// Close stops every pending deadline timer and closes the connections held by
// this instance, so their members reconnect to another one. Preparing states
// left behind are re-armed by whichever instance serves them next.
func (s service) Close() {
	s.deadlines.stopAll()

	for _, partyId := range s.connRepo.GetPartyIds() {
		s.metrics.Connections.Sub(float64(len(s.connRepo.GetConns(partyId))))
		s.connRepo.RemoveParty(partyId)
	}
}
