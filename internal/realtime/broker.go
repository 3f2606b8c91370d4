package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/domain"
)

// Broker publishes appended messages to every service instance. With a Redis
// client the message goes through a pub/sub channel and each instance relays
// it into its local hub; without one it goes straight to the local hub.
type Broker struct {
	hub     *Hub
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewBroker builds a broker. client may be nil.
func NewBroker(hub *Hub, client *redis.Client, channel string, logger *zap.Logger) *Broker {
	return &Broker{hub: hub, client: client, channel: channel, logger: logger}
}

// Hub returns the local hub subscribers attach to.
func (b *Broker) Hub() *Hub {
	return b.hub
}

// Publish announces msg. A failed Redis publish degrades to local delivery.
func (b *Broker) Publish(ctx context.Context, msg domain.Message) {
	if b.client == nil {
		b.hub.Publish(msg)
		return
	}

	payload, err := json.Marshal(msg)
	if err == nil {
		err = b.client.Publish(ctx, b.channel, payload).Err()
	}
	if err != nil {
		b.logger.Warn("redis publish failed; delivering locally",
			zap.String("channel", b.channel),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		b.hub.Publish(msg)
	}
}

// Run relays messages from Redis into the local hub until ctx is cancelled.
// It returns immediately when no Redis client is configured.
func (b *Broker) Run(ctx context.Context) {
	if b.client == nil {
		return
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	b.logger.Info("relaying realtime messages from redis", zap.String("channel", b.channel))
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg domain.Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				b.logger.Warn("dropping malformed realtime payload", zap.Error(err))
				continue
			}
			b.hub.Publish(msg)
		}
	}
}
