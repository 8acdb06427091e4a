package board

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBoard stores each thread as a redis list of JSON-encoded messages,
// so append order is the list order.
type RedisBoard struct {
	client *redis.Client
	prefix string
}

func NewRedisBoard(redisURL string) (*RedisBoard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBoard{client: client, prefix: "thread:"}, nil
}

// NewRedisBoardWithClient builds a board from an existing client.
func NewRedisBoardWithClient(client *redis.Client) *RedisBoard {
	return &RedisBoard{client: client, prefix: "thread:"}
}

func (b *RedisBoard) key(threadID string) string {
	return b.prefix + threadID
}

func (b *RedisBoard) Append(ctx context.Context, threadID, author, body string) error {
	msg := Message{
		Author:   author,
		Body:     body,
		PostedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.RPush(ctx, b.key(threadID), payload).Err(); err != nil {
		return fmt.Errorf("append to thread %s: %w", threadID, err)
	}
	return nil
}

func (b *RedisBoard) List(ctx context.Context, threadID string) ([]Message, error) {
	raw, err := b.client.LRange(ctx, b.key(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list thread %s: %w", threadID, err)
	}

	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode message in thread %s: %w", threadID, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Ping checks if redis is reachable.
func (b *RedisBoard) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the redis connection.
func (b *RedisBoard) Close() error {
	return b.client.Close()
}
