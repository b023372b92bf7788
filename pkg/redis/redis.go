// Package redis opens go-redis clients configured through functional options.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultPoolSize    = 10
)

type Option func(*goredis.Options)

func WithPassword(password string) Option {
	return func(o *goredis.Options) {
		o.Password = password
	}
}

func WithDB(db int) Option {
	return func(o *goredis.Options) {
		o.DB = db
	}
}

func WithPoolSize(n int) Option {
	return func(o *goredis.Options) {
		o.PoolSize = n
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *goredis.Options) {
		o.DialTimeout = d
	}
}

// New creates a client for the server at addr and verifies it with a PING.
func New(ctx context.Context, addr string, opts ...Option) (*goredis.Client, error) {
	const op = "redis.New"

	o := &goredis.Options{
		Addr:        addr,
		DialTimeout: defaultDialTimeout,
		PoolSize:    defaultPoolSize,
	}

	for _, opt := range opts {
		opt(o)
	}

	client := goredis.NewClient(o)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}

	return client, nil
}
