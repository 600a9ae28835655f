package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/partysync/internal/repository/party"
)

func (r repo) PublishEvent(ctx context.Context, params *party.PublishEventParams) error {
	if err := r.rc.Publish(ctx, r.getEventsChannel(params.PartyId), params.Payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// SubscribeEvents subscribes to the events of every party. The returned
// channel is closed once ctx is done or the subscription fails.
func (r repo) SubscribeEvents(ctx context.Context) (<-chan party.Event, error) {
	pubsub := r.rc.PSubscribe(ctx, eventsChannelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}

	events := make(chan party.Event)
	go func() {
		defer close(events)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				select {
				case events <- party.Event{
					PartyId: r.partyIdFromChannel(msg.Channel),
					Payload: []byte(msg.Payload),
				}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
