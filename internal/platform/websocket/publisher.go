package websocket

import (
	"context"

	"github.com/rs/zerolog"
)

// Notifier publishes events on a best-effort basis: a failed publish is
// logged and never reaches the caller.
type Notifier struct {
	pub    EventPublisher
	logger zerolog.Logger
}

func NewNotifier(pub EventPublisher, logger zerolog.Logger) *Notifier {
	return &Notifier{pub: pub, logger: logger}
}

// Notify publishes each event. A nil Notifier discards events.
func (n *Notifier) Notify(ctx context.Context, events ...Event) {
	if n == nil || n.pub == nil {
		return
	}
	for _, evt := range events {
		if err := n.pub.Publish(ctx, evt); err != nil {
			n.logger.Warn().Err(err).
				Str("event", evt.Type).
				Str("topic", evt.Topic).
				Msg("publish event failed")
		}
	}
}
