package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/itchan-dev/retroboard/shared/logger"
)

// RedisBroker relays board channels through Redis Pub/Sub so several API
// instances share the same channels.
type RedisBroker struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisBroker(client *redis.Client, keyPrefix string) *RedisBroker {
	if client == nil {
		panic("redis client cannot be nil for RedisBroker")
	}
	return &RedisBroker{client: client, prefix: keyPrefix, log: logger.Component("redis-broker")}
}

func (b *RedisBroker) key(channel string) string {
	return b.prefix + channel
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, msg []byte) error {
	if err := b.client.Publish(ctx, b.key(channel), msg).Err(); err != nil {
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published after it returns is missed.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, fn func([]byte)) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.key(channel))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis: subscribe to %s: %w", channel, err)
	}

	sub := &redisSub{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for m := range ps.Channel() {
			fn([]byte(m.Payload))
		}
		b.log.Debug("subscription closed", "channel", channel)
	}()
	return sub, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSub struct {
	ps   *redis.PubSub
	once sync.Once
	done chan struct{}
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		<-s.done
	})
	return err
}
