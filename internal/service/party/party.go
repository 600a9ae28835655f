package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sharetube/partysync/internal/repository/connection"
	"github.com/sharetube/partysync/internal/repository/party"
	"github.com/sharetube/partysync/pkg/playback"
	"github.com/sharetube/partysync/pkg/protocol"
)

type CreatePartyParams struct {
	DisplayName string
}

type CreatePartyResponse struct {
	PartyId  string
	MemberId string
	JWT      string
}

// CreateParty creates a stopped party. The caller becomes its host.
func (s service) CreateParty(ctx context.Context, params *CreatePartyParams) (CreatePartyResponse, error) {
	partyId := uuid.NewString()
	hostId := uuid.NewString()
	nowMs := s.nowMs()

	if err := s.partyRepo.SetParty(ctx, &party.SetPartyParams{
		PartyId:   partyId,
		HostId:    hostId,
		CreatedAt: nowMs,
	}); err != nil {
		return CreatePartyResponse{}, fmt.Errorf("failed to set party: %w", err)
	}

	if err := s.partyRepo.AddMember(ctx, &party.AddMemberParams{
		PartyId:     partyId,
		MemberId:    hostId,
		DisplayName: params.DisplayName,
		JoinedAt:    nowMs,
	}); err != nil {
		return CreatePartyResponse{}, fmt.Errorf("failed to add host: %w", err)
	}

	jwt, err := s.generateJWT(partyId, hostId)
	if err != nil {
		return CreatePartyResponse{}, fmt.Errorf("failed to generate jwt: %w", err)
	}

	s.logger.InfoContext(ctx, "party created", "party_id", partyId, "host_id", hostId)
	return CreatePartyResponse{
		PartyId:  partyId,
		MemberId: hostId,
		JWT:      jwt,
	}, nil
}

type JoinPartyParams struct {
	PartyId     string
	DisplayName string
}

type JoinPartyResponse struct {
	MemberId string
	JWT      string
	Snapshot protocol.Snapshot
}

func (s service) JoinParty(ctx context.Context, params *JoinPartyParams) (JoinPartyResponse, error) {
	memberId := uuid.NewString()
	if err := s.partyRepo.AddMember(ctx, &party.AddMemberParams{
		PartyId:     params.PartyId,
		MemberId:    memberId,
		DisplayName: params.DisplayName,
		JoinedAt:    s.nowMs(),
	}); err != nil {
		if errors.Is(err, party.ErrPartyNotFound) {
			return JoinPartyResponse{}, ErrPartyNotFound
		}

		return JoinPartyResponse{}, fmt.Errorf("failed to add member: %w", err)
	}

	jwt, err := s.generateJWT(params.PartyId, memberId)
	if err != nil {
		return JoinPartyResponse{}, fmt.Errorf("failed to generate jwt: %w", err)
	}

	snapshot, err := s.GetSnapshot(ctx, params.PartyId)
	if err != nil {
		return JoinPartyResponse{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return JoinPartyResponse{
		MemberId: memberId,
		JWT:      jwt,
		Snapshot: snapshot,
	}, nil
}

type ConnectMemberParams struct {
	PartyId  string
	MemberId string
	Conn     connection.Conn
}

// ConnectMember attaches a websocket of a known member to this instance and
// returns the snapshot the member starts from.
func (s service) ConnectMember(ctx context.Context, params *ConnectMemberParams) (protocol.Snapshot, error) {
	if _, err := s.partyRepo.GetMember(ctx, params.PartyId, params.MemberId); err != nil {
		if errors.Is(err, party.ErrMemberNotFound) {
			return protocol.Snapshot{}, ErrMemberNotFound
		}

		return protocol.Snapshot{}, fmt.Errorf("failed to get member: %w", err)
	}

	snapshot, err := s.GetSnapshot(ctx, params.PartyId)
	if err != nil {
		return protocol.Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if !snapshot.Exists {
		return protocol.Snapshot{}, ErrPartyNotFound
	}

	s.connRepo.Add(params.PartyId, params.MemberId, params.Conn)
	s.metrics.Connections.Inc()

	return snapshot, nil
}

type DisconnectMemberParams struct {
	PartyId  string
	MemberId string
	Conn     connection.Conn
}

func (s service) DisconnectMember(params *DisconnectMemberParams) {
	if err := s.connRepo.Remove(params.PartyId, params.MemberId, params.Conn); err == nil {
		s.metrics.Connections.Dec()
	}
}

type EndPartyParams struct {
	PartyId  string
	SenderId string
}

// EndParty stops playback for everyone, deletes the party and closes the
// connections of its members on every instance.
func (s service) EndParty(ctx context.Context, params *EndPartyParams) error {
	return s.withPartyLock(ctx, params.PartyId, func() error {
		if err := s.checkIfHost(ctx, params.PartyId, params.SenderId); err != nil {
			s.reject(err)
			return err
		}

		state, err := s.getPlaybackState(ctx, params.PartyId)
		if err != nil {
			return err
		}

		s.deadlines.cancel(params.PartyId)
		stopped := s.machine.Stop(state, s.nowMs())
		if err := s.publish(ctx, params.PartyId, protocol.FromState(stopped)); err != nil {
			return err
		}

		if err := s.partyRepo.RemoveParty(ctx, params.PartyId); err != nil {
			return fmt.Errorf("failed to remove party: %w", err)
		}

		if err := s.publish(ctx, params.PartyId, protocol.EndParty{}); err != nil {
			return err
		}

		s.metrics.Transitions.WithLabelValues(string(playback.StatusStopped)).Inc()
		s.logger.InfoContext(ctx, "party ended", "party_id", params.PartyId)
		return nil
	})
}
