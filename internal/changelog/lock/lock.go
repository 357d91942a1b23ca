// Package lock provides pass locks so only one syncer writes to a shared
// replica at a time.
package lock

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"policysync/internal/changelog/ports"
	"policysync/pkg/platform/sentinel"
)

// Local is an in-process lock for a single syncer.
type Local struct {
	mu sync.Mutex
}

var _ ports.Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(context.Context) (func(context.Context) error, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, true, nil
}

//go:embed release.lua
var releaseSource string

// Only the holder whose token is stored may delete the key.
var releaseScript = redis.NewScript(releaseSource)

const defaultTTL = 10 * time.Minute

// Redis is a lease held as a Redis key with an expiry, so a crashed holder
// cannot block other syncers for longer than the TTL.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ ports.Locker = (*Redis)(nil)

// NewRedis builds a lock stored under key. A ttl <= 0 uses a ten minute lease.
func NewRedis(client redis.UniversalClient, key string, ttl time.Duration) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, key: key, ttl: ttl}, nil
}

func (r *Redis) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire pass lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Int()
		if err != nil {
			return fmt.Errorf("release pass lock: %w", err)
		}
		if deleted == 0 {
			return fmt.Errorf("release pass lock: lease expired: %w", sentinel.ErrLocked)
		}
		return nil
	}
	return release, true, nil
}
