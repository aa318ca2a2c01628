package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	pkglog "github.com/AndlerRL/stream-u-media/pkg/log"
)

// RedisPubSub implements PubSub over Redis channels. One relay instance
// publishes room updates; sibling instances and display layers (event
// pages, occupancy dashboards) subscribe.
type RedisPubSub struct {
	client        *redis.Client
	subscriptions map[string]*redis.PubSub
	mu            sync.Mutex
}

// NewRedisPubSub creates a new Redis-based PubSub instance.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
	}, nil
}

// Publish publishes an event to the specified channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return r.client.Publish(ctx, channel, data).Err()
}

// SubscribeRoom delivers the decoded event stream for one room.
func (r *RedisPubSub) SubscribeRoom(ctx context.Context, roomID string) (<-chan *Event, error) {
	return r.subscribe(ctx, RoomEventsChannel(roomID), false)
}

// SubscribePattern delivers events for every channel matching pattern,
// e.g. relay:room:*:events.
func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.subscribe(ctx, pattern, true)
}

func (r *RedisPubSub) subscribe(ctx context.Context, target string, pattern bool) (<-chan *Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscriptions[target]; ok {
		return nil, fmt.Errorf("already subscribed to %s", target)
	}

	var ps *redis.PubSub
	if pattern {
		ps = r.client.PSubscribe(ctx, target)
	} else {
		ps = r.client.Subscribe(ctx, target)
	}
	// Confirm the subscription before handing out the channel.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", target, err)
	}
	r.subscriptions[target] = ps

	out := make(chan *Event, 64)
	go r.forward(ctx, target, ps, out)
	return out, nil
}

// forward decodes raw messages into Event envelopes. Undecodable
// payloads and slow consumers drop events rather than stalling the
// subscription; these channels are advisory, not a delivery guarantee.
func (r *RedisPubSub) forward(ctx context.Context, target string, ps *redis.PubSub, out chan<- *Event) {
	defer close(out)
	l := pkglog.L()

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				l.Warn().Err(err).Str("channel", target).Msg("dropping undecodable event")
				continue
			}

			select {
			case out <- &event:
			default:
				l.Warn().Str("channel", target).Str("type", event.Type).Msg("subscriber lagging, dropping event")
			}
		}
	}
}

// Unsubscribe tears down the subscription for a channel or pattern.
func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ps, ok := r.subscriptions[channel]; ok {
		if err := ps.Close(); err != nil {
			return err
		}
		delete(r.subscriptions, channel)
	}

	return nil
}

// Close closes all subscriptions and the Redis client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ps := range r.subscriptions {
		ps.Close()
	}
	r.subscriptions = make(map[string]*redis.PubSub)

	return r.client.Close()
}
