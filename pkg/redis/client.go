// Package redis provides the Redis client, the run lock and the shared
// credential store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const connectTimeout = 5 * time.Second

// Config holds Redis connection configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr is the host:port the client dials
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is the Redis connection shared by the run lock and the credential store
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient connects to Redis and verifies the connection with a ping
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	logger.WithField("addr", cfg.Addr()).Info("Connected to Redis")
	return &Client{rdb: rdb, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping is used by the readiness check
func (c *Client) Ping(ctx context.Context) error {
	defer observe("ping", time.Now())
	return c.rdb.Ping(ctx).Err()
}

// Lookup reads key. found is false when the key does not exist.
func (c *Client) Lookup(ctx context.Context, key string) (value string, found bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "Redis.Lookup")
	defer span.End()
	defer observe("get", time.Now())

	value, err = c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return "", false, err
	}
	return value, true, nil
}

// Store writes key. A zero ttl keeps the value until it is replaced.
func (c *Client) Store(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "Redis.Store")
	defer span.End()
	defer observe("set", time.Now())

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// Delete removes keys that exist and ignores the rest
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	ctx, span := tracing.StartSpan(ctx, "Redis.Delete")
	defer span.End()
	defer observe("del", time.Now())

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

func observe(operation string, start time.Time) {
	metrics.RedisOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
