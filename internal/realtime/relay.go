package realtime

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/events"
)

// RedisRelay shares events between engine instances over Redis pub/sub so every dashboard
// sees every change regardless of which instance handled the request.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	hub     *Hub
	logger  *zap.Logger
}

type envelope struct {
	Origin string          `json:"origin"`
	Event  json.RawMessage `json:"event"`
}

// NewRedisRelay builds a relay that feeds remote events into hub.
func NewRedisRelay(client redis.UniversalClient, channel string, hub *Hub, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		hub:     hub,
		logger:  logger,
	}
}

// Publish forwards a locally produced event to the other instances.
func (r *RedisRelay) Publish(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Origin: r.origin, Event: body})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run relays remote events to the local hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("event relay subscribed", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) handle(data []byte) {
	if !gjson.ValidBytes(data) {
		r.logger.Warn("discarding malformed relay message")
		return
	}
	if gjson.GetBytes(data, "origin").String() == r.origin {
		return
	}
	event := gjson.GetBytes(data, "event")
	if !event.IsObject() {
		return
	}
	r.hub.Broadcast([]byte(event.Raw))
}
