package redisstore

import (
	"context"
	"fmt"
	"time"

	"cryptoquotes-service/internal/application"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ application.IdempotencyStore = (*Store)(nil)

// Store reserves idempotency keys with SET NX; a key stays held for TTL.
type Store struct {
	Client *redis.Client
	TTL    time.Duration
	Log    *zap.Logger
}

func New(client *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{Client: client, TTL: ttl, Log: log}
}

// Connect builds a client and pings it once.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *Store) TryReserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.Client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.TTL).Result()
	if err != nil {
		s.Log.Error("idempotency.reserve_failed", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("redis: setnx: %w", err)
	}
	if !ok {
		s.Log.Info("idempotency.duplicate", zap.String("key", key))
	}
	return ok, nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.Client.Del(ctx, key).Err(); err != nil {
		s.Log.Error("idempotency.release_failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis: del: %w", err)
	}
	s.Log.Info("idempotency.released", zap.String("key", key))
	return nil
}
