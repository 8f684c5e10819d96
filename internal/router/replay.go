package router

import (
	"context"
	"fmt"

	"payhook/internal/broker"
	"payhook/internal/events"
	"payhook/pkg/models"
	"payhook/pkg/retry"
)

// ParseBody decodes a provider webhook body whose signature has already been
// checked. A GoCardless body may carry several events.
func ParseBody(provider events.Provider, region string, body []byte) ([]events.Event, error) {
	switch provider {
	case events.ProviderStripe:
		evt, err := events.ParseStripe(body, region)
		if err != nil {
			return nil, err
		}
		return []events.Event{evt}, nil
	case events.ProviderGoCardless:
		return events.ParseGoCardless(body, region)
	}
	return nil, events.ErrMalformedPayload.WithMessage(fmt.Sprintf("unknown provider %q", provider))
}

// ReplayHandler feeds replay envelopes back through Route. Undecodable
// replays are fatal so the consumer parks them on the DLQ without retrying.
func (r *Router) ReplayHandler() broker.HandlerFunc {
	return func(ctx context.Context, msg models.MessageEnvelope) error {
		if msg.Kind != models.KindReplay {
			r.logger.WarnwCtx(ctx, "Skipping non-replay message", "kind", msg.Kind, "message_id", msg.ID)
			return nil
		}

		provider := events.Provider(msg.GetString(models.FieldProvider))
		region := msg.GetString(models.FieldRegion)
		evts, err := ParseBody(provider, region, []byte(msg.GetString(models.FieldBody)))
		if err != nil {
			return retry.NewFatalError(err)
		}

		for _, evt := range evts {
			res, err := r.Route(ctx, evt)
			if err != nil {
				return fmt.Errorf("replay of %s failed: %w", evt.ID, err)
			}
			r.logger.InfowCtx(ctx, "Replayed event",
				"event_id", evt.ID,
				"event_status", res.EventStatus,
				"attempt", msg.Metadata.Attempt,
			)
		}
		return nil
	}
}
