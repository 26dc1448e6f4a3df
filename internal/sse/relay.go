package sse

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/debemdeboas/coursesync/internal/events"
)

// Relay broadcasts forwarded event envelopes to SSE clients.
type Relay struct {
	messages <-chan *message.Message
	clients  *Clients
}

// NewRelay subscribes to topic right away so no event published after it
// returns is missed.
func NewRelay(ctx context.Context, sub message.Subscriber, topic string, clients *Clients) (*Relay, error) {
	if topic == "" {
		topic = events.DefaultTopic
	}
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	return &Relay{messages: messages, clients: clients}, nil
}

// Run relays until ctx is done or the subscription closes.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-r.messages:
			if !ok {
				return nil
			}
			env, err := events.DecodeEnvelope(msg)
			if err != nil {
				sseLogger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Skipping undecodable event")
				msg.Ack()
				continue
			}
			r.clients.Broadcast(env.Key, Message{Event: string(env.Kind), Data: msg.Payload})
			msg.Ack()
		}
	}
}
