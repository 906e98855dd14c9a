// Package store is the typed facade over the coordination store: every
// queue, hash, set, and counter operation the pipeline needs goes through
// here rather than through a raw *redis.Client.
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a *redis.Client with the narrow set of operations the
// worker fleet needs. Apart from MultiExec and Raw, callers never see
// redis types.
type Client struct {
	rdb *redis.Client
}

// New constructs a Client against the given Redis connection URL
// (redis://host:port/db form, as accepted by redis.ParseURL).
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// NewFromRedis wraps an already-constructed *redis.Client, used by tests
// to point the facade at a miniredis instance.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Raw exposes the underlying client for MultiExec callers that need
// redis.Pipeliner directly.
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

func (c *Client) HashSetFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	vals := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		vals[k] = v
	}
	return c.rdb.HSet(ctx, key, vals).Err()
}

func (c *Client) HashGetField(ctx context.Context, key, field string) (string, bool, error) {
	v, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Client) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *Client) HashIncr(ctx context.Context, key, field string, delta int64) (int64, error) {
	return c.rdb.HIncrBy(ctx, key, field, delta).Result()
}

func (c *Client) ListPushLeft(ctx context.Context, list, value string) error {
	return c.rdb.LPush(ctx, list, value).Err()
}

func (c *Client) ListPushRight(ctx context.Context, list, value string) error {
	return c.rdb.RPush(ctx, list, value).Err()
}

// ListBlockingPopRight blocks until a value is available on the first
// non-empty list among lists, in the given order, or until timeout
// elapses (timeout == 0 means block forever). ok is false on timeout.
func (c *Client) ListBlockingPopRight(ctx context.Context, timeout time.Duration, lists ...string) (list, value string, ok bool, err error) {
	res, err := c.rdb.BRPop(ctx, timeout, lists...).Result()
	if err == redis.Nil {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return res[0], res[1], true, nil
}

func (c *Client) SetAdd(ctx context.Context, set, value string) error {
	return c.rdb.SAdd(ctx, set, value).Err()
}

func (c *Client) SetRemove(ctx context.Context, set, value string) error {
	return c.rdb.SRem(ctx, set, value).Err()
}

func (c *Client) SetMembers(ctx context.Context, set string) ([]string, error) {
	return c.rdb.SMembers(ctx, set).Result()
}

func (c *Client) ListLen(ctx context.Context, list string) (int64, error) {
	return c.rdb.LLen(ctx, list).Result()
}

func (c *Client) SetLen(ctx context.Context, set string) (int64, error) {
	return c.rdb.SCard(ctx, set).Result()
}

func (c *Client) ListDelete(ctx context.Context, list string) error {
	return c.rdb.Del(ctx, list).Err()
}

// MultiExec runs fn against a transactional pipeline, executing it
// atomically against Redis. Used by the dashboard snapshot read and by
// the semaphore's token-list reset.
func (c *Client) MultiExec(ctx context.Context, fn func(pipe redis.Pipeliner) error) error {
	_, err := c.rdb.TxPipelined(ctx, fn)
	return err
}

// SetNX is a thin passthrough used for the semaphore bootstrap lock.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}
