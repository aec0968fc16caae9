package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus relays events through one Redis channel so watchers on every
// instance see writes made by any instance. Local fan-out reuses MemoryBus.
type RedisBus struct {
	rdb     redis.UniversalClient
	channel string
	local   *MemoryBus
	sub     *redis.PubSub
	logger  zerolog.Logger
}

// NewRedisBus subscribes to the channel and starts relaying until ctx is done
// or Close is called.
func NewRedisBus(ctx context.Context, rdb redis.UniversalClient, channel string, logger zerolog.Logger) (*RedisBus, error) {
	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	b := &RedisBus{
		rdb:     rdb,
		channel: channel,
		local:   NewMemoryBus(),
		sub:     sub,
		logger:  logger.With().Str("component", "pubsub").Logger(),
	}
	go b.relay(sub.Channel())
	return b, nil
}

func (b *RedisBus) relay(ch <-chan *redis.Message) {
	for msg := range ch {
		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			b.logger.Warn().Err(err).Msg("dropping malformed change event")
			continue
		}
		b.local.dispatch(e)
	}
}

// Publish sends e to every instance, including this one.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = b.local.now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(topic string, h Handler) func() {
	return b.local.Subscribe(topic, h)
}

func (b *RedisBus) Close() error {
	return b.sub.Close()
}
