package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/partysync/internal/repository/connection"
	"github.com/sharetube/partysync/internal/service/party"
	"github.com/sharetube/partysync/pkg/ctxlogger"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/sharetube/partysync/pkg/wsrouter"
)

// connect upgrades a member to the push channel. The first message on the
// channel is always PARTY_STATE.
func (c controller) connect(w http.ResponseWriter, r *http.Request) {
	partyId := chi.URLParam(r, "party-id")

	claims, err := c.partyService.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	if claims.PartyId != partyId {
		c.writeError(w, r, party.ErrInvalidToken)
		return
	}

	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("party_id", partyId))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("member_id", claims.MemberId))

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade to websocket", "error", err)
		return
	}

	conn := connection.NewWSConn(ws, c.writeTimeout)
	defer conn.Close()

	snapshot, err := c.partyService.ConnectMember(ctx, &party.ConnectMemberParams{
		PartyId:  partyId,
		MemberId: claims.MemberId,
		Conn:     conn,
	})
	if err != nil {
		c.handleWSError(ctx, conn, err)
		return
	}
	defer c.partyService.DisconnectMember(&party.DisconnectMemberParams{
		PartyId:  partyId,
		MemberId: claims.MemberId,
		Conn:     conn,
	})

	if err := conn.WriteJSON(protocol.Encode(protocol.PartyState{Snapshot: snapshot})); err != nil {
		c.logger.WarnContext(ctx, "failed to write party state", "error", err)
		return
	}

	c.logger.InfoContext(ctx, "member connected")

	ctx = context.WithValue(ctx, partyIdCtxKey, partyId)
	ctx = context.WithValue(ctx, memberIdCtxKey, claims.MemberId)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "member disconnected", "reason", err)
	}
}

func (c controller) commandParams(ctx context.Context) *party.CommandParams {
	return &party.CommandParams{
		PartyId:  c.getPartyIdFromCtx(ctx),
		SenderId: c.getMemberIdFromCtx(ctx),
	}
}

func (c controller) handleTimePing(_ context.Context, conn wsrouter.Conn, msg protocol.TimePing) error {
	if err := c.validateInput(msg); err != nil {
		return err
	}

	return conn.WriteJSON(protocol.Encode(c.partyService.Pong(msg)))
}

func (c controller) handleAlive(_ context.Context, _ wsrouter.Conn, _ protocol.Alive) error {
	return nil
}

func (c controller) handleSelectTrack(ctx context.Context, _ wsrouter.Conn, msg protocol.SelectTrack) error {
	if err := c.validateInput(msg); err != nil {
		return err
	}

	if _, err := c.partyService.SelectTrack(ctx, &party.SelectTrackParams{
		PartyId:          c.getPartyIdFromCtx(ctx),
		SenderId:         c.getMemberIdFromCtx(ctx),
		Track:            msg.Track,
		StartPositionSec: msg.StartPositionSec,
	}); err != nil {
		return fmt.Errorf("failed to select track: %w", err)
	}

	return nil
}

func (c controller) handleQueueTrack(ctx context.Context, _ wsrouter.Conn, msg protocol.QueueTrack) error {
	if err := c.validateInput(msg); err != nil {
		return err
	}

	if _, err := c.partyService.QueueTrack(ctx, &party.QueueTrackParams{
		PartyId:  c.getPartyIdFromCtx(ctx),
		SenderId: c.getMemberIdFromCtx(ctx),
		Track:    msg.Track,
	}); err != nil {
		return fmt.Errorf("failed to queue track: %w", err)
	}

	return nil
}

func (c controller) handleGo(ctx context.Context, _ wsrouter.Conn, _ protocol.Go) error {
	if _, err := c.partyService.Go(ctx, c.commandParams(ctx)); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	return nil
}

func (c controller) handlePausePlayback(ctx context.Context, _ wsrouter.Conn, _ protocol.PausePlayback) error {
	if _, err := c.partyService.Pause(ctx, c.commandParams(ctx)); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}

	return nil
}

func (c controller) handleResume(ctx context.Context, _ wsrouter.Conn, _ protocol.Resume) error {
	if _, err := c.partyService.Resume(ctx, c.commandParams(ctx)); err != nil {
		return fmt.Errorf("failed to resume playback: %w", err)
	}

	return nil
}

func (c controller) handleSeek(ctx context.Context, _ wsrouter.Conn, msg protocol.Seek) error {
	if err := c.validateInput(msg); err != nil {
		return err
	}

	if _, err := c.partyService.Seek(ctx, &party.SeekParams{
		PartyId:     c.getPartyIdFromCtx(ctx),
		SenderId:    c.getMemberIdFromCtx(ctx),
		PositionSec: msg.PositionSec,
	}); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	return nil
}

func (c controller) handleStopPlayback(ctx context.Context, _ wsrouter.Conn, _ protocol.StopPlayback) error {
	if _, err := c.partyService.Stop(ctx, c.commandParams(ctx)); err != nil {
		return fmt.Errorf("failed to stop playback: %w", err)
	}

	return nil
}

func (c controller) handleNextTrack(ctx context.Context, _ wsrouter.Conn, _ protocol.NextTrack) error {
	if _, err := c.partyService.Next(ctx, c.commandParams(ctx)); err != nil {
		return fmt.Errorf("failed to skip track: %w", err)
	}

	return nil
}

func (c controller) handleTrackEnded(ctx context.Context, _ wsrouter.Conn, msg protocol.TrackEnded) error {
	if err := c.validateInput(msg); err != nil {
		return err
	}

	if _, err := c.partyService.TrackEnded(ctx, &party.TrackEndedParams{
		PartyId:  c.getPartyIdFromCtx(ctx),
		SenderId: c.getMemberIdFromCtx(ctx),
		Version:  msg.Version,
	}); err != nil {
		return fmt.Errorf("failed to end track: %w", err)
	}

	return nil
}

func (c controller) handleEndParty(ctx context.Context, _ wsrouter.Conn, _ protocol.EndParty) error {
	if err := c.partyService.EndParty(ctx, &party.EndPartyParams{
		PartyId:  c.getPartyIdFromCtx(ctx),
		SenderId: c.getMemberIdFromCtx(ctx),
	}); err != nil {
		return fmt.Errorf("failed to end party: %w", err)
	}

	return nil
}
