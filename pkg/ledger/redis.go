package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
)

// Redis keeps one key per processed message. Keys never expire.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the redis URL (redis://host:port/db) and pings it.
func OpenRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(id string) string {
	return r.prefix + id
}

func (r *Redis) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Mark(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	// SETNX keeps the first timestamp.
	if err := r.client.SetNX(ctx, r.key(id), time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("ledger mark: %w", err)
	}
	return nil
}

func (r *Redis) ProcessedAt(ctx context.Context, id string) (time.Time, error) {
	v, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, pferrors.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger lookup: %w", err)
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger entry %q has invalid timestamp: %w", id, err)
	}
	return at, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
