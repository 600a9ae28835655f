package party

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sharetube/partysync/internal/repository/party"
	"github.com/sharetube/partysync/pkg/protocol"
	"github.com/sourcegraph/conc"
)

// RunSubscriber delivers published party events to the members connected to
// this instance until ctx is done.
func (s service) RunSubscriber(ctx context.Context) error {
	events, err := s.partyRepo.SubscribeEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to party events: %w", err)
	}

	for ev := range events {
		s.deliver(ctx, ev)
	}

	return ctx.Err()
}

func (s service) deliver(ctx context.Context, ev party.Event) {
	msg, err := protocol.Unmarshal(ev.Payload)
	if err != nil {
		s.logger.WarnContext(ctx, "dropping malformed party event", "party_id", ev.PartyId, "error", err)
		return
	}

	if _, ok := msg.(protocol.EndParty); ok {
		s.logger.InfoContext(ctx, "closing party connections", "party_id", ev.PartyId)
		conns := s.connRepo.GetConns(ev.PartyId)
		s.connRepo.RemoveParty(ev.PartyId)
		s.metrics.Connections.Sub(float64(len(conns)))
		return
	}

	s.pushToParty(ctx, ev.PartyId, json.RawMessage(ev.Payload))
}

// pushToParty writes payload to every local connection of the party
// concurrently. A failed write drops only that member's connection.
func (s service) pushToParty(ctx context.Context, partyId string, payload any) {
	var wg conc.WaitGroup
	for memberId, conn := range s.connRepo.GetConns(partyId) {
		wg.Go(func() {
			if err := conn.WriteJSON(payload); err != nil {
				s.metrics.PushFailures.Inc()
				s.logger.WarnContext(ctx, "push failed, dropping connection",
					"party_id", partyId,
					"member_id", memberId,
					"error", err,
				)
				if err := s.connRepo.Remove(partyId, memberId, conn); err == nil {
					s.metrics.Connections.Dec()
				}
				return
			}

			s.metrics.Pushes.Inc()
		})
	}
	wg.Wait()
}
