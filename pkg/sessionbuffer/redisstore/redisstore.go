// Package redisstore implements sessionbuffer.Store on top of a Redis-
// compatible list, using RPUSH/LRANGE/DEL with an EXPIRE refreshed on every
// append.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/sessionbuffer"
)

// Store wraps a *redis.Client.
type Store struct {
	client *redis.Client
}

var _ sessionbuffer.Store = (*Store)(nil)

// New creates a Store backed by client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Open parses url (a redis:// or rediss:// DSN) and returns a connected Store.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("sessionbuffer/redisstore: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("sessionbuffer/redisstore: ping: %w", err)
	}
	return New(client), nil
}

// Append pushes chunk and resets the key's TTL to sessionbuffer.DefaultTTL on
// every call. It does not track when the key was first written, so the
// sessionbuffer.MaxTTL ceiling is not applied: a key that keeps receiving
// appends does not expire.
func (s *Store) Append(ctx context.Context, key string, chunk string) error {
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, chunk)
	pipe.Expire(ctx, key, sessionbuffer.DefaultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("sessionbuffer/redisstore: append %s: %w", key, err)
	}
	return nil
}

func (s *Store) Range(ctx context.Context, key string) ([]string, error) {
	chunks, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("sessionbuffer/redisstore: range %s: %w", key, err)
	}
	return chunks, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("sessionbuffer/redisstore: delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
