package gateway

import (
	"context"
	"log/slog"

	"marketcal/internal/model"
)

// EventSource is a stream of session events from another process.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan model.SessionEvent, error)
}

// PubSubRouter relays events announced on Redis to the hub, for gateways
// running apart from the session clock.
type PubSubRouter struct {
	hub *Hub
	src EventSource

	// OnEvent is called for each relayed event before it is broadcast.
	OnEvent func(ev model.SessionEvent)
}

// NewPubSubRouter creates a PubSubRouter backed by the given Hub.
func NewPubSubRouter(hub *Hub, src EventSource) *PubSubRouter {
	return &PubSubRouter{hub: hub, src: src}
}

// Run subscribes and relays until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) error {
	events, err := r.src.Subscribe(ctx)
	if err != nil {
		return err
	}
	slog.Info("relaying redis status events", "component", "gateway")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if r.OnEvent != nil {
				r.OnEvent(ev)
			}
			r.hub.Publish(ev)
		}
	}
}
