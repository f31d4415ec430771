package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionPrefix = "dialogue:session:"

// RedisStore - общее хранилище для нескольких инстансов. TTL продлевается при каждой записи.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(flow FlowType, userID string) string {
	return sessionPrefix + string(flow) + ":" + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	for _, f := range Priority {
		data, err := s.client.Get(ctx, key(f, userID)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get session: %w", err)
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		return &sess, nil
	}
	return nil, ErrNotFound
}

func (s *RedisStore) Set(ctx context.Context, sess *Session) error {
	stored := sess.Clone()
	stored.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	others := make([]string, 0, len(Priority))
	for _, f := range Priority {
		if f != sess.Flow {
			others = append(others, key(f, sess.UserID))
		}
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, others...)
		p.Set(ctx, key(sess.Flow, sess.UserID), b, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	keys := make([]string, 0, len(Priority))
	for _, f := range Priority {
		keys = append(keys, key(f, userID))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear session: %w", err)
	}
	return nil
}
