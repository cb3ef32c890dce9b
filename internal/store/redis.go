package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// RedisStates implements StateStore with expiring Redis keys, so pending
// authorizations survive across instances.
type RedisStates struct {
	rdb *redis.Client
}

func NewRedisStates(url string) (*RedisStates, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStates{rdb: redis.NewClient(opt)}, nil
}

func (s *RedisStates) CreateState(ctx context.Context, returnTo string, ttl time.Duration) (string, error) {
	state := uuid.NewString()
	if err := s.rdb.Set(ctx, s.key(state), returnTo, ttl).Err(); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	return state, nil
}

func (s *RedisStates) ConsumeState(ctx context.Context, state string) (string, error) {
	v, err := s.rdb.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	return v, nil
}

func (s *RedisStates) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *RedisStates) Close() error { return s.rdb.Close() }

func (s *RedisStates) key(state string) string { return "oauth:state:" + state }
