package party

import (
	"context"
	"fmt"

	"github.com/sharetube/partysync/internal/repository/party"
	"github.com/sharetube/partysync/pkg/playback"
	"github.com/sharetube/partysync/pkg/protocol"
)

// broadcast persists state and then announces it to every instance. A
// member that fetches the state after receiving the announcement always sees
// at least this version.
func (s service) broadcast(ctx context.Context, partyId string, state playback.State) error {
	if err := s.partyRepo.SetPlaybackState(ctx, playbackStateParams(partyId, state)); err != nil {
		return fmt.Errorf("failed to persist playback state: %w", err)
	}

	if err := s.publish(ctx, partyId, protocol.FromState(state)); err != nil {
		return err
	}

	s.metrics.Transitions.WithLabelValues(string(state.Status)).Inc()
	s.logger.InfoContext(ctx, "playback state changed",
		"party_id", partyId,
		"status", state.Status,
		"version", state.Version,
		"start_at_server_ms", state.StartAtServerMs,
	)

	return nil
}

func (s service) publish(ctx context.Context, partyId string, msg protocol.Message) error {
	payload, err := protocol.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msg.Type(), err)
	}

	if err := s.partyRepo.PublishEvent(ctx, &party.PublishEventParams{
		PartyId: partyId,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.Type(), err)
	}

	return nil
}
