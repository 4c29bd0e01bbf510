package timerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/itchan-dev/retroboard/shared/domain"
)

// stale timers expire on their own even if nobody stops them
const redisTTL = 24 * time.Hour

type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, prefix: keyPrefix}
}

func (r *Redis) key(boardId domain.BoardId) string {
	return r.prefix + "timer:" + boardId
}

func (r *Redis) Get(ctx context.Context, boardId domain.BoardId) (*domain.TimerState, error) {
	raw, err := r.client.Get(ctx, r.key(boardId)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get timer: %w", err)
	}
	var st domain.TimerState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("redis: decode timer: %w", err)
	}
	return &st, nil
}

func (r *Redis) Set(ctx context.Context, state domain.TimerState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(state.BoardId), raw, redisTTL).Err(); err != nil {
		return fmt.Errorf("redis: set timer: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, boardId domain.BoardId) error {
	if err := r.client.Del(ctx, r.key(boardId)).Err(); err != nil {
		return fmt.Errorf("redis: delete timer: %w", err)
	}
	return nil
}
