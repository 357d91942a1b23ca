// Package redis connects the syncer to the Redis instance that backs the
// redis store and the shared pass lock.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"policysync/internal/platform/config"
)

// Client is a connected go-redis client plus the key namespace every
// syncer key lives under.
type Client struct {
	*redis.Client
	prefix string
}

// New dials Redis and pings it once. A config without a URL means Redis is
// not in use and yields a nil client.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: rdb, prefix: cfg.Prefix}, nil
}

// Key namespaces name under the configured prefix, e.g. "changelog:lock".
func (c *Client) Key(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + ":" + name
}

// Options turns the URL into go-redis options. Pool and timeout settings
// override the URL only when set.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	setInt(&opts.PoolSize, cfg.PoolSize)
	setInt(&opts.MinIdleConns, cfg.MinIdleConns)
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
