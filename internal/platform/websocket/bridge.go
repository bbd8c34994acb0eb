package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge publishes events to a Redis channel and forwards everything
// received on that channel to the local hub, so that each server instance's
// clients see events produced by any instance.
type RedisBridge struct {
	rdb     *goredis.Client
	channel string
	hub     *Hub
	logger  zerolog.Logger
}

func NewRedisBridge(ctx context.Context, redisURL, channel string, hub *Hub, logger zerolog.Logger) (*RedisBridge, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBridge{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		logger:  logger.With().Str("component", "redis_bridge").Logger(),
	}, nil
}

func (b *RedisBridge) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Run forwards channel messages to the hub until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("redis event bridge started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			b.forward(m.Payload)
		}
	}
}

func (b *RedisBridge) forward(payload string) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn().Err(err).Msg("bad redis event payload")
		return
	}
	b.hub.Broadcast(evt.Topic, evt)
}

func (b *RedisBridge) Close() error {
	return b.rdb.Close()
}
