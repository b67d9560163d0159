package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisEventBus keeps a capped list of recent events and fans each one out on
// a pub/sub channel so every server instance can push it to its websocket
// clients.
type RedisEventBus struct {
	client  *RedisClient
	listKey string
	listMax int
	channel string
}

func NewRedisEventBus(client *RedisClient, listKey string, listMax int, channel string) *RedisEventBus {
	if listKey == "" {
		listKey = "events"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	if channel == "" {
		channel = "events:live"
	}
	return &RedisEventBus{client: client, listKey: listKey, listMax: listMax, channel: channel}
}

func (b *RedisEventBus) Insert(ctx context.Context, e model.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return pushCapped(ctx, b.client, b.listKey, b.listMax, payload)
}

func (b *RedisEventBus) List(ctx context.Context, filter model.EventFilter) ([]model.Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	items, err := b.client.Client.LRange(ctx, b.listKey, 0, int64(scanWindow(limit, b.listMax)-1)).Result()
	if err != nil {
		return nil, err
	}
	events := make([]model.Event, 0, limit)
	for _, raw := range items {
		var e model.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		if !filter.Matches(e) {
			continue
		}
		events = append(events, e)
		if len(events) >= limit {
			break
		}
	}
	return events, nil
}

// Publish sends e on the live channel.
func (b *RedisEventBus) Publish(ctx context.Context, e model.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := b.client.Client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe streams events published by any instance until ctx is done. The
// returned channel is closed when the subscription ends.
func (b *RedisEventBus) Subscribe(ctx context.Context) (<-chan model.Event, error) {
	pubsub := b.client.Client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}

	out := make(chan model.Event, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				e, err := decodeEvent(msg)
				if err != nil {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeEvent(msg *redis.Message) (model.Event, error) {
	var e model.Event
	err := json.Unmarshal([]byte(msg.Payload), &e)
	return e, err
}
