package utils

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis client with JSON-aware helpers
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new wrapper
func NewRedisClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

func encode(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LPush prepends a value to a list and trims the list to maxLen entries (0 keeps everything)
func (r *RedisClient) LPush(ctx context.Context, key string, value interface{}, maxLen int64) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	if maxLen > 0 {
		pipe.LTrim(ctx, key, 0, maxLen-1)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// LRange returns list elements
func (r *RedisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.client.LRange(ctx, key, start, stop).Result()
}

// Publish sends a message to a channel
func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := encode(message)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// GetClient returns the underlying client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}
