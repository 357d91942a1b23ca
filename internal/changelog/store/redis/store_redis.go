package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/pkg/platform/sentinel"
)

const defaultPrefix = "changelog"

// RedisStore keeps the replica in a Redis hash keyed by domain name. HSET
// replaces a field atomically, so readers see the old or the new envelope.
type RedisStore struct {
	client       redis.UniversalClient
	domainsKey   string
	watermarkKey string
}

var _ ports.Backend = (*RedisStore)(nil)

// New constructs a Redis-backed store under keys "<prefix>:domains" and
// "<prefix>:watermark".
func New(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{
		client:       client,
		domainsKey:   prefix + ":domains",
		watermarkKey: prefix + ":watermark",
	}
}

func (s *RedisStore) Get(ctx context.Context, name string) (models.Record, error) {
	payload, err := s.client.HGet(ctx, s.domainsKey, name).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("domain %q: %w", name, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find domain: %w", err)
	}
	rec, err := models.UnmarshalRecord(payload)
	if err != nil {
		return nil, fmt.Errorf("domain %q: %w: %v", name, sentinel.ErrInvalidState, err)
	}
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, name string, record models.Record) error {
	payload, err := models.MarshalRecord(record)
	if err != nil {
		return fmt.Errorf("encode domain %q: %w", name, err)
	}
	if err := s.client.HSet(ctx, s.domainsKey, name, payload).Err(); err != nil {
		return fmt.Errorf("save domain: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, name string) error {
	if err := s.client.HDel(ctx, s.domainsKey, name).Err(); err != nil {
		return fmt.Errorf("remove domain: %w", err)
	}
	return nil
}

func (s *RedisStore) ListNames(ctx context.Context) ([]string, error) {
	names, err := s.client.HKeys(ctx, s.domainsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	return names, nil
}

func (s *RedisStore) Watermark(ctx context.Context) (string, error) {
	value, err := s.client.Get(ctx, s.watermarkKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("read watermark: %w", err)
	}
	return value, nil
}

func (s *RedisStore) SetWatermark(ctx context.Context, value string) error {
	if err := s.client.Set(ctx, s.watermarkKey, value, 0).Err(); err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}
