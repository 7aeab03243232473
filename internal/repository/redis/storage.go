package redis

import (
	"context"
	"errors"
	"time"

	"rostergate/internal/client"
)

// Storage adapts the Redis client to the roster cache's string key-value
// contract (cache.Storage). TTL handling stays in the cache layer so the
// freshness rule is identical across storage media; Redis only holds bytes.
type Storage struct {
	client *client.RedisClient
	prefix string
}

func NewStorage(c *client.RedisClient, prefix string) *Storage {
	return &Storage{client: c, prefix: prefix}
}

func (s *Storage) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	val, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (s *Storage) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.client.Set(ctx, s.prefix+key, value, 0)
}

func (s *Storage) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.client.Del(ctx, s.prefix+key)
}
