// Package protocol defines the closed set of websocket messages exchanged
// between party members and the server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sharetube/partysync/pkg/playback"
)

var ErrUnknownType = errors.New("unknown message type")

type Type string

const (
	// client -> server
	TypeTimePing      Type = "TIME_PING"
	TypeAlive         Type = "ALIVE"
	TypeSelectTrack   Type = "SELECT_TRACK"
	TypeQueueTrack    Type = "QUEUE_TRACK"
	TypeGo            Type = "GO"
	TypePausePlayback Type = "PAUSE_PLAYBACK"
	TypeResume        Type = "RESUME"
	TypeSeek          Type = "SEEK"
	TypeStopPlayback  Type = "STOP_PLAYBACK"
	TypeNextTrack     Type = "NEXT_TRACK"
	TypeTrackEnded    Type = "TRACK_ENDED"
	TypeEndParty      Type = "END_PARTY"

	// server -> client
	TypeTimePong    Type = "TIME_PONG"
	TypePreparePlay Type = "PREPARE_PLAY"
	TypePlayAt      Type = "PLAY_AT"
	TypePause       Type = "PAUSE"
	TypeStop        Type = "STOP"
	TypePartyState  Type = "PARTY_STATE"
	TypeError       Type = "ERROR"
)

type Message interface {
	Type() Type
	isMessage()
}

type TimePing struct {
	PingId      string `json:"ping_id" validate:"required,max=64"`
	ClientNowMs int64  `json:"client_now_ms"`
}

type Alive struct{}

type SelectTrack struct {
	Track            playback.Track `json:"track"`
	StartPositionSec float64        `json:"start_position_sec" validate:"gte=0"`
}

type QueueTrack struct {
	Track playback.Track `json:"track"`
}

type Go struct{}

type PausePlayback struct{}

type Resume struct{}

type Seek struct {
	PositionSec float64 `json:"position_sec" validate:"gte=0"`
}

type StopPlayback struct{}

type NextTrack struct{}

type TrackEnded struct {
	Version int64 `json:"version" validate:"gte=0"`
}

type EndParty struct{}

type TimePong struct {
	PingId      string `json:"ping_id"`
	ServerNowMs int64  `json:"server_now_ms"`
}

// Schedule is the payload shared by PREPARE_PLAY and PLAY_AT.
type Schedule struct {
	TrackId          string  `json:"track_id"`
	TrackURL         string  `json:"track_url"`
	Title            string  `json:"title"`
	DurationMs       int64   `json:"duration_ms"`
	StartAtServerMs  int64   `json:"start_at_server_ms"`
	StartPositionSec float64 `json:"start_position_sec"`
	Version          int64   `json:"version"`
}

type PreparePlay struct {
	Schedule
}

type PlayAt struct {
	Schedule
}

type Pause struct {
	PausedPositionSec float64 `json:"paused_position_sec"`
	PausedAtServerMs  int64   `json:"paused_at_server_ms"`
	Version           int64   `json:"version"`
}

type Stop struct {
	Version int64 `json:"version"`
}

type PartyState struct {
	Snapshot
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (TimePing) Type() Type      { return TypeTimePing }
func (Alive) Type() Type         { return TypeAlive }
func (SelectTrack) Type() Type   { return TypeSelectTrack }
func (QueueTrack) Type() Type    { return TypeQueueTrack }
func (Go) Type() Type            { return TypeGo }
func (PausePlayback) Type() Type { return TypePausePlayback }
func (Resume) Type() Type        { return TypeResume }
func (Seek) Type() Type          { return TypeSeek }
func (StopPlayback) Type() Type  { return TypeStopPlayback }
func (NextTrack) Type() Type     { return TypeNextTrack }
func (TrackEnded) Type() Type    { return TypeTrackEnded }
func (EndParty) Type() Type      { return TypeEndParty }
func (TimePong) Type() Type      { return TypeTimePong }
func (PreparePlay) Type() Type   { return TypePreparePlay }
func (PlayAt) Type() Type        { return TypePlayAt }
func (Pause) Type() Type         { return TypePause }
func (Stop) Type() Type          { return TypeStop }
func (PartyState) Type() Type    { return TypePartyState }
func (Error) Type() Type         { return TypeError }

func (TimePing) isMessage()      {}
func (Alive) isMessage()         {}
func (SelectTrack) isMessage()   {}
func (QueueTrack) isMessage()    {}
func (Go) isMessage()            {}
func (PausePlayback) isMessage() {}
func (Resume) isMessage()        {}
func (Seek) isMessage()          {}
func (StopPlayback) isMessage()  {}
func (NextTrack) isMessage()     {}
func (TrackEnded) isMessage()    {}
func (EndParty) isMessage()      {}
func (TimePong) isMessage()      {}
func (PreparePlay) isMessage()   {}
func (PlayAt) isMessage()        {}
func (Pause) isMessage()         {}
func (Stop) isMessage()          {}
func (PartyState) isMessage()    {}
func (Error) isMessage()         {}

// Envelope is the wire form of every message.
type Envelope struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

type rawEnvelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func Encode(m Message) Envelope {
	return Envelope{Type: m.Type(), Payload: m}
}

func Marshal(m Message) ([]byte, error) {
	return json.Marshal(Encode(m))
}

func Unmarshal(data []byte) (Message, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	return Decode(env.Type, env.Payload)
}

// Decode turns a tagged payload into its concrete message.
func Decode(t Type, payload json.RawMessage) (Message, error) {
	switch t {
	case TypeTimePing:
		return decodeInto[TimePing](payload)
	case TypeAlive:
		return Alive{}, nil
	case TypeSelectTrack:
		return decodeInto[SelectTrack](payload)
	case TypeQueueTrack:
		return decodeInto[QueueTrack](payload)
	case TypeGo:
		return Go{}, nil
	case TypePausePlayback:
		return PausePlayback{}, nil
	case TypeResume:
		return Resume{}, nil
	case TypeSeek:
		return decodeInto[Seek](payload)
	case TypeStopPlayback:
		return StopPlayback{}, nil
	case TypeNextTrack:
		return NextTrack{}, nil
	case TypeTrackEnded:
		return decodeInto[TrackEnded](payload)
	case TypeEndParty:
		return EndParty{}, nil
	case TypeTimePong:
		return decodeInto[TimePong](payload)
	case TypePreparePlay:
		return decodeInto[PreparePlay](payload)
	case TypePlayAt:
		return decodeInto[PlayAt](payload)
	case TypePause:
		return decodeInto[Pause](payload)
	case TypeStop:
		return decodeInto[Stop](payload)
	case TypePartyState:
		return decodeInto[PartyState](payload)
	case TypeError:
		return decodeInto[Error](payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func decodeInto[T Message](payload json.RawMessage) (Message, error) {
	var m T
	if len(payload) == 0 || string(payload) == "null" {
		return m, nil
	}

	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", m.Type(), err)
	}

	return m, nil
}
