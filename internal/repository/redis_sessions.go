package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/valenrosasc/chatbot/internal/conversation"
)

const sessionKeyPrefix = "citas:session:"

// RedisSessionStore keeps conversation sessions in Redis so in-flight dialogues
// survive restarts. Idle sessions expire after ttl.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (r *RedisSessionStore) Get(ctx context.Context, senderID string) (*conversation.Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+senderID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, conversation.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var s conversation.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Put(ctx context.Context, session *conversation.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+session.SenderID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, senderID string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+senderID).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
