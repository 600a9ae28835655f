package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/partysync/internal/service/party"
	"github.com/sharetube/partysync/pkg/playback"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/sharetube/partysync/pkg/validator"
	"github.com/sharetube/partysync/pkg/wsrouter"
)

type iPartyService interface {
	// party
	CreateParty(context.Context, *party.CreatePartyParams) (party.CreatePartyResponse, error)
	JoinParty(context.Context, *party.JoinPartyParams) (party.JoinPartyResponse, error)
	EndParty(context.Context, *party.EndPartyParams) error
	ConnectMember(context.Context, *party.ConnectMemberParams) (protocol.Snapshot, error)
	DisconnectMember(*party.DisconnectMemberParams)
	ParseToken(string) (*party.Claims, error)
	// recovery and clock
	GetSnapshot(context.Context, string) (protocol.Snapshot, error)
	ServerNowMs() int64
	Pong(protocol.TimePing) protocol.TimePong
	// player
	SelectTrack(context.Context, *party.SelectTrackParams) (playback.State, error)
	QueueTrack(context.Context, *party.QueueTrackParams) (playback.State, error)
	Go(context.Context, *party.CommandParams) (playback.State, error)
	Pause(context.Context, *party.CommandParams) (playback.State, error)
	Resume(context.Context, *party.CommandParams) (playback.State, error)
	Seek(context.Context, *party.SeekParams) (playback.State, error)
	Stop(context.Context, *party.CommandParams) (playback.State, error)
	Next(context.Context, *party.CommandParams) (playback.State, error)
	TrackEnded(context.Context, *party.TrackEndedParams) (playback.State, error)
}

type Config struct {
	// WriteTimeout bounds every websocket write, pushes included.
	WriteTimeout time.Duration
}

type controller struct {
	partyService   iPartyService
	metricsHandler http.Handler
	upgrader       websocket.Upgrader
	wsmux          *wsrouter.WSRouter
	validate       *validator.Validator
	logger         *slog.Logger
	writeTimeout   time.Duration
}

func NewController(partyService iPartyService, metricsHandler http.Handler, logger *slog.Logger, cfg *Config) *controller {
	c := &controller{
		partyService:   partyService,
		metricsHandler: metricsHandler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:     validator.NewValidator(),
		logger:       logger,
		writeTimeout: cfg.WriteTimeout,
	}
	c.wsmux = c.getWSRouter()

	return c
}
