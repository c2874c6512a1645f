package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/savaki/socialauth/internal/models"
)

const keyPrefix = "session:"

// Redis stores sessions as JSON values that expire after ttl.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to redisURL and pings it before returning.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return NewRedisWithClient(rdb, ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// Close shuts down the Redis client.
func (s *Redis) Close() error {
	return s.rdb.Close()
}

func (s *Redis) Save(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	if err := s.rdb.Set(ctx, keyPrefix+session.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving session %s: %w", session.ID, err)
	}
	return nil
}

// Find returns nil, nil when the key is absent or has expired.
func (s *Redis) Find(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session %s: %w", id, err)
	}
	return &session, nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}
