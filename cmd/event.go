package cmd

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/travel-requests/internal/core/events"
)

// subscribeEventTrace logs every store change published on bus.
func subscribeEventTrace(bus *events.EventBus, lg *slog.Logger) {
	for _, eventType := range []string{events.SessionChanged, events.DestinationsChanged, events.TravelRequestsChanged} {
		bus.Subscribe(eventType, func(_ context.Context, event events.Event) error {
			lg.Info("store changed",
				"event_id", event.EventID(),
				"event_type", event.EventType(),
				"payload", event.Payload())
			return nil
		})
	}
}
